package common

import (
	"github.com/google/uuid"
)

// NewOfferID generates a unique offer ID with the "offer_" prefix
func NewOfferID() string {
	return "offer_" + uuid.New().String()
}

// NewHistoryID generates a unique history entry ID with the "hist_" prefix
func NewHistoryID() string {
	return "hist_" + uuid.New().String()
}

// NewPostID generates a unique published post ID with the "post_" prefix
func NewPostID() string {
	return "post_" + uuid.New().String()
}
