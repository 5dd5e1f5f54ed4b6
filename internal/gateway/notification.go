package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/set-night/acueducto/internal/domain"
	"github.com/shopspring/decimal"
)

const maxNotificationBody = 64 << 10

const StatusApproved = "APPROVED"

// Notification is an inbound gateway message after field aliases have been
// resolved.
type Notification struct {
	ReferenceCode string
	Status        string
	Token         string
	Kind          domain.TxKind
	Amount        decimal.Decimal
	Currency      string
}

func (n Notification) Approved() bool {
	return n.Status == StatusApproved
}

var fieldAliases = map[string][]string{
	"reference": {"referenceCode", "reference_code", "reference_sale", "referencia"},
	"status":    {"status", "transactionState", "state_pol", "estado"},
	"token":     {"token", "signature", "firma"},
	"kind":      {"kind", "type", "tipo"},
	"amount":    {"amount", "value", "monto"},
	"currency":  {"currency", "moneda"},
}

// stateCodes maps the numeric state_pol values of form notifications.
var stateCodes = map[string]string{
	"4":   StatusApproved,
	"5":   "EXPIRED",
	"6":   "DECLINED",
	"7":   "PENDING",
	"104": "ERROR",
}

var kindAliases = map[string]domain.TxKind{
	"donation":   domain.TxKindDonation,
	"donacion":   domain.TxKindDonation,
	"membership": domain.TxKindMembership,
	"membresia":  domain.TxKindMembership,
	"invoice":    domain.TxKindInvoice,
	"factura":    domain.TxKindInvoice,
}

// ParseNotification reads a JSON or form encoded notification body.
func ParseNotification(r *http.Request) (Notification, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBody))
	if err != nil {
		return Notification{}, fmt.Errorf("read body: %w", err)
	}

	fields := map[string]string{}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return Notification{}, domain.NewValidationError("body", "malformed form body")
		}
		for k := range values {
			fields[k] = values.Get(k)
		}
	default:
		var raw map[string]any
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return Notification{}, domain.NewValidationError("body", "malformed JSON body")
		}
		for k, v := range raw {
			switch val := v.(type) {
			case string:
				fields[k] = val
			case json.Number:
				fields[k] = val.String()
			case bool:
				fields[k] = fmt.Sprint(val)
			}
		}
	}
	return notificationFromFields(fields)
}

func lookup(fields map[string]string, name string) string {
	for _, alias := range fieldAliases[name] {
		if v := strings.TrimSpace(fields[alias]); v != "" {
			return v
		}
	}
	return ""
}

func notificationFromFields(fields map[string]string) (Notification, error) {
	n := Notification{
		ReferenceCode: lookup(fields, "reference"),
		Status:        strings.ToUpper(lookup(fields, "status")),
		Token:         lookup(fields, "token"),
		Currency:      strings.ToUpper(lookup(fields, "currency")),
	}
	if n.ReferenceCode == "" {
		return Notification{}, domain.NewValidationError("referenceCode", "is required")
	}
	if n.Status == "" {
		return Notification{}, domain.NewValidationError("status", "is required")
	}
	if _, err := strconv.Atoi(n.Status); err == nil {
		status, ok := stateCodes[n.Status]
		if !ok {
			return Notification{}, domain.NewValidationError("status", "unknown state code")
		}
		n.Status = status
	}
	if n.Token == "" {
		return Notification{}, domain.NewValidationError("token", "is required")
	}

	if k := lookup(fields, "kind"); k != "" {
		kind, ok := kindAliases[strings.ToLower(k)]
		if !ok {
			return Notification{}, domain.NewValidationError("kind", "unknown transaction kind")
		}
		n.Kind = kind
	}

	if a := lookup(fields, "amount"); a != "" {
		amount, err := decimal.NewFromString(a)
		if err != nil {
			return Notification{}, domain.NewValidationError("amount", "is not a number")
		}
		n.Amount = amount
	}
	return n, nil
}
