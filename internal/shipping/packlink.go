package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/verone/backoffice/internal/config"
	"github.com/verone/backoffice/internal/logger"
)

const packlinkTimeout = 30 * time.Second

var ErrPacklinkNotConfigured = errors.New("packlink client is not configured")

type PacklinkError struct {
	StatusCode int
	Message    string
}

func (e *PacklinkError) Error() string {
	return fmt.Sprintf("packlink api error (%d): %s", e.StatusCode, e.Message)
}

type packlinkAddress struct {
	Name    string `json:"name"`
	Surname string `json:"surname"`
	Company string `json:"company,omitempty"`
	Street1 string `json:"street1"`
	ZipCode string `json:"zip_code"`
	City    string `json:"city"`
	Country string `json:"country"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

type packlinkPackage struct {
	Weight float64 `json:"weight"`
	Length int     `json:"length"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

type PacklinkShipmentRequest struct {
	From            packlinkAddress   `json:"from"`
	To              packlinkAddress   `json:"to"`
	Packages        []packlinkPackage `json:"packages"`
	ServiceID       int               `json:"service_id"`
	Content         string            `json:"content"`
	CustomReference string            `json:"shipment_custom_reference"`
	Source          string            `json:"source"`
}

// PacklinkShipment is what a created Packlink shipment contributes to ours.
type PacklinkShipment struct {
	Reference      string
	Carrier        string
	Service        string
	TrackingNumber string
	TrackingURL    string
	LabelURL       string
	CostCents      int64
}

type PacklinkClient struct {
	baseURL    string
	apiKey     string
	sender     packlinkAddress
	httpClient *http.Client
}

func NewPacklinkClient(cfg *config.AppConfig) (*PacklinkClient, error) {
	if cfg.PacklinkAPIKey == "" {
		return nil, ErrPacklinkNotConfigured
	}
	senderName, senderSurname := contactNames(cfg.PacklinkSenderName, cfg.PacklinkSenderSurname)
	return &PacklinkClient{
		baseURL: cfg.PacklinkBaseURL,
		apiKey:  cfg.PacklinkAPIKey,
		sender: packlinkAddress{
			Name:    senderName,
			Surname: senderSurname,
			Street1: cfg.PacklinkSenderStreet,
			ZipCode: cfg.PacklinkSenderPostalCode,
			City:    cfg.PacklinkSenderCity,
			Country: cfg.PacklinkSenderCountry,
			Email:   cfg.PacklinkSenderEmail,
			Phone:   cfg.PacklinkSenderPhone,
		},
		httpClient: &http.Client{Timeout: packlinkTimeout},
	}, nil
}

// BuildRequest maps our parcels to Packlink packages; weights go in kilograms.
func (c *PacklinkClient) BuildRequest(order *Order, in ShipmentInput) PacklinkShipmentRequest {
	packages := make([]packlinkPackage, 0, len(in.Parcels))
	for _, p := range in.Parcels {
		packages = append(packages, packlinkPackage{
			Weight: decimal.New(int64(p.WeightGrams), -3).InexactFloat64(),
			Length: p.LengthCm,
			Width:  p.WidthCm,
			Height: p.HeightCm,
		})
	}
	r := in.Packlink.Recipient
	name, surname := contactNames(r.Name, r.Surname)
	return PacklinkShipmentRequest{
		From: c.sender,
		To: packlinkAddress{
			Name:    name,
			Surname: surname,
			Company: r.Company,
			Street1: r.Street,
			ZipCode: r.PostalCode,
			City:    r.City,
			Country: r.Country,
			Email:   r.Email,
			Phone:   r.Phone,
		},
		Packages:        packages,
		ServiceID:       in.Packlink.ServiceID,
		Content:         "Mobilier et décoration",
		CustomReference: order.OrderNumber,
		Source:          "api",
	}
}

// contactNames returns the first name and surname Packlink requires. Without
// an explicit surname the last word of name is used; a single word fills both.
func contactNames(name, surname string) (string, string) {
	name = strings.TrimSpace(name)
	surname = strings.TrimSpace(surname)
	if surname != "" {
		return name, surname
	}
	words := strings.Fields(name)
	if len(words) < 2 {
		return name, name
	}
	return strings.Join(words[:len(words)-1], " "), words[len(words)-1]
}

// CreateShipment books the shipment, then reads back carrier, tracking and
// label. A reference is returned even when the follow-up reads fail so the
// caller can cancel the booking.
func (c *PacklinkClient) CreateShipment(ctx context.Context, req PacklinkShipmentRequest) (*PacklinkShipment, error) {
	var created struct {
		Reference string `json:"reference"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/shipments", req, &created); err != nil {
		return nil, err
	}
	if created.Reference == "" {
		return nil, &PacklinkError{StatusCode: http.StatusBadGateway, Message: "no shipment reference returned"}
	}
	result := &PacklinkShipment{Reference: created.Reference}

	var details struct {
		Carrier     string   `json:"carrier"`
		Service     string   `json:"service"`
		Trackings   []string `json:"trackings"`
		TrackingURL string   `json:"tracking_url"`
		Price       struct {
			TotalPrice decimal.Decimal `json:"total_price"`
		} `json:"price"`
	}
	ref := url.PathEscape(created.Reference)
	if err := c.do(ctx, http.MethodGet, "/v1/shipments/"+ref, nil, &details); err != nil {
		return result, fmt.Errorf("read packlink shipment %s: %w", created.Reference, err)
	}
	result.Carrier = details.Carrier
	result.Service = details.Service
	result.TrackingURL = details.TrackingURL
	if len(details.Trackings) > 0 {
		result.TrackingNumber = details.Trackings[0]
	}
	result.CostCents = details.Price.TotalPrice.Shift(2).Round(0).IntPart()

	var labels []string
	if err := c.do(ctx, http.MethodGet, "/v1/shipments/"+ref+"/labels", nil, &labels); err != nil {
		return result, fmt.Errorf("read packlink labels %s: %w", created.Reference, err)
	}
	if len(labels) > 0 {
		result.LabelURL = labels[0]
	}
	return result, nil
}

func (c *PacklinkClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode packlink request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("packlink request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	logger.L.Debug("packlink request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start).String())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var errBody struct {
			Message string `json:"message"`
		}
		msg := string(bytes.TrimSpace(raw))
		if json.Unmarshal(raw, &errBody) == nil && errBody.Message != "" {
			msg = errBody.Message
		}
		return &PacklinkError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode packlink response: %w", err)
	}
	return nil
}
