package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/promolink/internal/common"
	"github.com/ternarybob/promolink/internal/httpclient"
	"github.com/ternarybob/promolink/internal/models"
)

// WhatsApp publishes offers through the Green-API gateway
type WhatsApp struct {
	fetcher   *httpclient.Fetcher
	config    common.WhatsAppConfig
	secrets   *common.SecretResolver
	converter *md.Converter
	logger    arbor.ILogger
}

// NewWhatsApp creates a Green-API publisher
func NewWhatsApp(config common.WhatsAppConfig, fetcher *httpclient.Fetcher, secrets *common.SecretResolver, logger arbor.ILogger) *WhatsApp {
	return &WhatsApp{
		fetcher:   fetcher,
		config:    config,
		secrets:   secrets,
		converter: newWhatsAppConverter(),
		logger:    logger,
	}
}

func newWhatsAppConverter() *md.Converter {
	converter := md.NewConverter("", true, &md.Options{
		StrongDelimiter: "*",
		EmDelimiter:     "_",
		EscapeMode:      "disabled",
	})
	converter.AddRules(
		md.Rule{
			Filter: []string{"a"},
			Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
				href, _ := selec.Attr("href")
				content = strings.TrimSpace(content)
				if href == "" || href == content {
					return md.String(content + href)
				}
				if content == "" {
					return md.String(href)
				}
				return md.String(content + ": " + href)
			},
		},
		md.Rule{
			Filter: []string{"code"},
			Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
				return md.String("```" + content + "```")
			},
		},
	)
	return converter
}

// Name returns the publisher name used in logs and metrics
func (w *WhatsApp) Name() string {
	return "whatsapp"
}

func (w *WhatsApp) token(ctx context.Context) string {
	return w.secrets.Resolve(ctx, common.SecretWhatsAppToken, w.config.Token)
}

// Enabled reports whether the gateway is switched on and fully configured
func (w *WhatsApp) Enabled(ctx context.Context) bool {
	return w.config.Enabled && w.config.InstanceID != "" && w.config.Destination != "" && w.token(ctx) != ""
}

// ToWhatsAppText converts Telegram HTML into WhatsApp markup
func (w *WhatsApp) ToWhatsAppText(html string) string {
	src := strings.ReplaceAll(html, "\n", "<br>")
	out, err := w.converter.ConvertString(src)
	if err != nil {
		w.logger.Debug().Err(err).Msg("HTML conversion failed, sending raw text")
		return html
	}

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (w *WhatsApp) endpoint(method, token string) string {
	return fmt.Sprintf("%s/waInstance%s/%s/%s", strings.TrimRight(w.config.APIURL, "/"), w.config.InstanceID, method, token)
}

type greenAPIResponse struct {
	IDMessage string `json:"idMessage"`
}

// Publish sends the offer as a captioned upload when media exists, else as text.
// It returns the Green-API message id.
func (w *WhatsApp) Publish(ctx context.Context, offer models.QueuedOffer) (string, error) {
	token := w.token(ctx)
	if !w.config.Enabled || w.config.InstanceID == "" || w.config.Destination == "" || token == "" {
		return "", &httpclient.PermanentError{Endpoint: "whatsapp", Message: "whatsapp gateway not configured"}
	}

	text := w.ToWhatsAppText(offer.Text)

	var req httpclient.Request
	method := "sendMessage"
	if fileExists(offer.MediaPath) {
		body, contentType, err := uploadBody(w.config.Destination, text, offer.MediaPath)
		if err != nil {
			return "", fmt.Errorf("failed to build upload: %w", err)
		}
		method = "sendFileByUpload"
		req = httpclient.Request{
			Method:  "POST",
			URL:     w.endpoint(method, token),
			Headers: map[string]string{"Content-Type": contentType},
			Body:    body,
		}
	} else {
		body, err := json.Marshal(map[string]string{"chatId": w.config.Destination, "message": text})
		if err != nil {
			return "", err
		}
		req = httpclient.Request{
			Method:  "POST",
			URL:     w.endpoint(method, token),
			Headers: map[string]string{"Content-Type": "application/json"},
			Body:    body,
		}
	}

	// The token is part of the URL, so errors name the method only
	endpoint := "green-api/" + method

	resp, err := w.fetcher.Fetch(ctx, req)
	if err != nil {
		if httpclient.IsRetryable(err) {
			return "", &httpclient.TransientNetworkError{Endpoint: endpoint, Err: errors.New("request failed")}
		}
		return "", &httpclient.PermanentError{Endpoint: endpoint, Message: "request failed"}
	}
	if err := httpclient.ClassifyResponse(endpoint, resp, nil); err != nil {
		return "", err
	}

	var parsed greenAPIResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", &httpclient.PermanentError{Endpoint: endpoint, Message: "malformed response"}
	}

	w.logger.Info().Str("destination", w.config.Destination).Str("id_message", parsed.IDMessage).Msg("Offer published to WhatsApp")
	return parsed.IDMessage, nil
}

func uploadBody(chatID, caption, path string) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("chatId", chatID); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("caption", caption); err != nil {
		return nil, "", err
	}
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}
