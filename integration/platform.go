package integration

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Platform identifies the commerce or accounting system behind an adapter
type Platform string

const (
	Shopify     Platform = "shopify"
	Stripe      Platform = "stripe"
	Square      Platform = "square"
	PayPal      Platform = "paypal"
	BigCommerce Platform = "bigcommerce"
	Xero        Platform = "xero"
	QuickBooks  Platform = "quickbooks"
	WooCommerce Platform = "woocommerce"
)

// Platforms lists every supported platform
var Platforms = []Platform{Shopify, Stripe, Square, PayPal, BigCommerce, Xero, QuickBooks, WooCommerce}

func (p Platform) String() string {
	return string(p)
}

// Validate checks if the platform is supported
func (p Platform) Validate() error {
	for _, known := range Platforms {
		if p == known {
			return nil
		}
	}
	return fmt.Errorf("unsupported platform: %q", string(p))
}

/* Credentials is a closed set of per-platform secrets
 * Each variant validates its own required fields
 */
type Credentials interface {
	Platform() Platform
	Validate() error
}

type ShopifyCredentials struct {
	ShopDomain  string `json:"shop_domain"`
	AccessToken string `json:"access_token"`
}

func (ShopifyCredentials) Platform() Platform { return Shopify }

func (c ShopifyCredentials) Validate() error {
	if !strings.HasSuffix(c.ShopDomain, ".myshopify.com") {
		return fmt.Errorf("shop_domain must end with .myshopify.com")
	}
	return required(map[string]string{"access_token": c.AccessToken})
}

type StripeCredentials struct {
	SecretKey     string `json:"secret_key"`
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

func (StripeCredentials) Platform() Platform { return Stripe }

func (c StripeCredentials) Validate() error {
	if !strings.HasPrefix(c.SecretKey, "sk_") && !strings.HasPrefix(c.SecretKey, "rk_") {
		return fmt.Errorf("secret_key must be a secret or restricted key")
	}
	return nil
}

type SquareCredentials struct {
	AccessToken string `json:"access_token"`
	LocationID  string `json:"location_id"`
	Sandbox     bool   `json:"sandbox"`
}

func (SquareCredentials) Platform() Platform { return Square }

func (c SquareCredentials) Validate() error {
	return required(map[string]string{"access_token": c.AccessToken, "location_id": c.LocationID})
}

type PayPalCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Sandbox      bool   `json:"sandbox"`
}

func (PayPalCredentials) Platform() Platform { return PayPal }

func (c PayPalCredentials) Validate() error {
	return required(map[string]string{"client_id": c.ClientID, "client_secret": c.ClientSecret})
}

type BigCommerceCredentials struct {
	StoreHash   string `json:"store_hash"`
	ClientID    string `json:"client_id"`
	AccessToken string `json:"access_token"`
}

func (BigCommerceCredentials) Platform() Platform { return BigCommerce }

func (c BigCommerceCredentials) Validate() error {
	return required(map[string]string{
		"store_hash":   c.StoreHash,
		"client_id":    c.ClientID,
		"access_token": c.AccessToken,
	})
}

type XeroCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TenantID     string `json:"tenant_id"`
	RefreshToken string `json:"refresh_token"`
}

func (XeroCredentials) Platform() Platform { return Xero }

func (c XeroCredentials) Validate() error {
	return required(map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"tenant_id":     c.TenantID,
		"refresh_token": c.RefreshToken,
	})
}

type QuickBooksCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RealmID      string `json:"realm_id"`
	RefreshToken string `json:"refresh_token"`
	Sandbox      bool   `json:"sandbox"`
}

func (QuickBooksCredentials) Platform() Platform { return QuickBooks }

func (c QuickBooksCredentials) Validate() error {
	return required(map[string]string{
		"client_id":     c.ClientID,
		"client_secret": c.ClientSecret,
		"realm_id":      c.RealmID,
		"refresh_token": c.RefreshToken,
	})
}

type WooCommerceCredentials struct {
	StoreURL       string `json:"store_url"`
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
}

func (WooCommerceCredentials) Platform() Platform { return WooCommerce }

func (c WooCommerceCredentials) Validate() error {
	u, err := url.Parse(c.StoreURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("store_url must be an https url")
	}
	if !strings.HasPrefix(c.ConsumerKey, "ck_") || !strings.HasPrefix(c.ConsumerSecret, "cs_") {
		return fmt.Errorf("consumer_key and consumer_secret must use the ck_ and cs_ prefixes")
	}
	return nil
}

// DecodeCredentials parses the JSON credentials of platform p and validates them
func DecodeCredentials(p Platform, data []byte) (Credentials, error) {
	var (
		creds Credentials
		err   error
	)
	switch p {
	case Shopify:
		creds, err = decodeAs[ShopifyCredentials](data)
	case Stripe:
		creds, err = decodeAs[StripeCredentials](data)
	case Square:
		creds, err = decodeAs[SquareCredentials](data)
	case PayPal:
		creds, err = decodeAs[PayPalCredentials](data)
	case BigCommerce:
		creds, err = decodeAs[BigCommerceCredentials](data)
	case Xero:
		creds, err = decodeAs[XeroCredentials](data)
	case QuickBooks:
		creds, err = decodeAs[QuickBooksCredentials](data)
	case WooCommerce:
		creds, err = decodeAs[WooCommerceCredentials](data)
	default:
		return nil, p.Validate()
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s credentials: %w", p, err)
	}

	if err := creds.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s credentials: %w", p, err)
	}
	return creds, nil
}

func decodeAs[T Credentials](data []byte) (Credentials, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func required(fields map[string]string) error {
	var missing []string
	for name, value := range fields {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
}
