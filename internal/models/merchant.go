package models

// Merchant identifies the store a product link belongs to
type Merchant string

const (
	MerchantAmazon       Merchant = "amazon"
	MerchantMercadoLivre Merchant = "mercadolivre"
	MerchantAliExpress   Merchant = "aliexpress"
	MerchantShopee       Merchant = "shopee"
	MerchantUnknown      Merchant = "unknown"
)

// String returns the merchant tag
func (m Merchant) String() string {
	if m == "" {
		return string(MerchantUnknown)
	}
	return string(m)
}

// ProductMetadata is the title and image of a product page
type ProductMetadata struct {
	Title          string `json:"title"`
	ImageURL       string `json:"image_url"`
	LocalImagePath string `json:"local_image_path,omitempty"`
	StatusCode     int    `json:"status_code,omitempty"`
}

// HasTitle reports whether a usable title was found
func (m *ProductMetadata) HasTitle() bool {
	return m != nil && m.Title != ""
}
