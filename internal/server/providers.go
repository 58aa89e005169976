package server

import (
	"fmt"

	"plumberleads/internal/config"
	"plumberleads/internal/gateway"
	"plumberleads/internal/gateway/fake"
	"plumberleads/internal/gateway/stripe"
	"plumberleads/internal/geocode"
)

// NewGateway picks the payment provider named by PAYMENT_GATEWAY.
func NewGateway(cfg *config.Config) (gateway.Gateway, error) {
	switch cfg.PaymentGateway {
	case "stripe":
		return stripe.New(cfg.StripeSecretKey, cfg.WebhookSecret, nil), nil
	case "fake", "":
		return fake.New(cfg.WebhookSecret), nil
	default:
		return nil, fmt.Errorf("unknown payment gateway %q", cfg.PaymentGateway)
	}
}

// NewGeocoder picks the geocoder named by GEOCODER.
func NewGeocoder(cfg *config.Config) geocode.Geocoder {
	switch cfg.Geocoder {
	case "nominatim":
		return geocode.NewNominatim(cfg.NominatimURL, cfg.GeocoderUserAgent, cfg.GatewayTimeout)
	case "static":
		return geocode.NewStatic(geocode.DefaultTable())
	default:
		return geocode.None{}
	}
}
