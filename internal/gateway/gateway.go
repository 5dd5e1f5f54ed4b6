package gateway

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/set-night/acueducto/internal/config"
	"github.com/set-night/acueducto/internal/domain"
	"github.com/shopspring/decimal"
)

// Gateway is one configured payment provider.
type Gateway struct {
	Name        string
	MerchantID  string
	AccountID   string
	Currency    string
	CheckoutURL string
	OrderURL    string
	Test        bool

	apiKey string
	signer Signer
}

func New(cfg config.Gateway) (*Gateway, error) {
	signer, err := NewSigner(cfg.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("gateway %s: %w", cfg.Name, err)
	}
	currency := cfg.Currency
	if currency == "" {
		currency = config.DefaultCurrency
	}
	return &Gateway{
		Name:        cfg.Name,
		MerchantID:  cfg.MerchantID,
		AccountID:   cfg.AccountID,
		Currency:    currency,
		CheckoutURL: cfg.CheckoutURL,
		OrderURL:    cfg.OrderURL,
		Test:        cfg.Test,
		apiKey:      cfg.APIKey,
		signer:      signer,
	}, nil
}

// FormatAmount renders an amount the same way on both sides of the token.
func FormatAmount(amount decimal.Decimal) string {
	return amount.String()
}

func (g *Gateway) Token(reference string, amount decimal.Decimal, currency string) string {
	return g.signer.Sign(TokenPayload(g.apiKey, g.MerchantID, reference, FormatAmount(amount), currency))
}

// Verify checks the notification token against the stored transaction. The
// token is recomputed from the stored amount and currency, so a tampered
// amount fails the same way as a forged token.
func (g *Gateway) Verify(n Notification, tx domain.PaymentTransaction) error {
	if n.Kind != "" && n.Kind != tx.Kind {
		return fmt.Errorf("kind %s does not match: %w", n.Kind, domain.ErrSignature)
	}
	if !n.Amount.IsZero() && !n.Amount.Equal(tx.Amount) {
		return fmt.Errorf("amount does not match: %w", domain.ErrSignature)
	}
	if n.Currency != "" && n.Currency != tx.Currency {
		return fmt.Errorf("currency does not match: %w", domain.ErrSignature)
	}
	expected := g.Token(tx.ReferenceCode, tx.Amount, tx.Currency)
	if !tokensEqual(expected, n.Token) {
		return domain.ErrSignature
	}
	return nil
}

// CheckoutForm is what the customer's browser posts to the gateway.
type CheckoutForm struct {
	Gateway         string `json:"gateway"`
	Action          string `json:"action,omitempty"`
	MerchantID      string `json:"merchantId"`
	AccountID       string `json:"accountId,omitempty"`
	ReferenceCode   string `json:"referenceCode"`
	Description     string `json:"description"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
	Token           string `json:"token"`
	Test            bool   `json:"test"`
	ResponseURL     string `json:"responseUrl"`
	ConfirmationURL string `json:"confirmationUrl"`
}

func (g *Gateway) Form(tx domain.PaymentTransaction, description, responseURL, confirmationURL string) CheckoutForm {
	return CheckoutForm{
		Gateway:         g.Name,
		Action:          g.CheckoutURL,
		MerchantID:      g.MerchantID,
		AccountID:       g.AccountID,
		ReferenceCode:   tx.ReferenceCode,
		Description:     description,
		Amount:          FormatAmount(tx.Amount),
		Currency:        tx.Currency,
		Token:           g.Token(tx.ReferenceCode, tx.Amount, tx.Currency),
		Test:            g.Test,
		ResponseURL:     responseURL,
		ConfirmationURL: confirmationURL,
	}
}

// Link renders the form as a GET URL on the gateway's checkout page, for
// clients such as chat apps that cannot post a form.
func (f CheckoutForm) Link() string {
	v := url.Values{}
	v.Set("merchantId", f.MerchantID)
	if f.AccountID != "" {
		v.Set("accountId", f.AccountID)
	}
	v.Set("referenceCode", f.ReferenceCode)
	v.Set("description", f.Description)
	v.Set("amount", f.Amount)
	v.Set("currency", f.Currency)
	v.Set("signature", f.Token)
	if f.Test {
		v.Set("test", "1")
	}
	v.Set("responseUrl", f.ResponseURL)
	v.Set("confirmationUrl", f.ConfirmationURL)

	sep := "?"
	if strings.Contains(f.Action, "?") {
		sep = "&"
	}
	return f.Action + sep + v.Encode()
}

// Registry resolves gateways by name.
type Registry struct {
	byName  map[string]*Gateway
	primary string
}

func NewRegistry(gateways ...*Gateway) *Registry {
	r := &Registry{byName: make(map[string]*Gateway, len(gateways))}
	for _, g := range gateways {
		if r.primary == "" {
			r.primary = g.Name
		}
		r.byName[g.Name] = g
	}
	return r
}

func FromConfig(cfg *config.Config) (*Registry, error) {
	var gws []*Gateway
	for _, gc := range cfg.Gateways() {
		g, err := New(gc)
		if err != nil {
			return nil, err
		}
		gws = append(gws, g)
	}
	return NewRegistry(gws...), nil
}

func (r *Registry) Get(name string) (*Gateway, error) {
	g, ok := r.byName[name]
	if !ok {
		return nil, domain.ErrUnknownGateway
	}
	return g, nil
}

// Primary is the gateway used for new checkouts.
func (r *Registry) Primary() (*Gateway, error) {
	return r.Get(r.primary)
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
