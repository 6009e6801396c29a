package httppresentation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type addressDTO struct {
	FullName   string `json:"fullName" validate:"required,max=200"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	Region     string `json:"region" validate:"max=100"`
	PostalCode string `json:"postalCode" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,iso3166_1_alpha2"`
	Phone      string `json:"phone" validate:"max=40"`
}

func (a addressDTO) toDomain() order.Address {
	return order.Address{
		FullName:   a.FullName,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Region:     a.Region,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

type checkoutRequest struct {
	ShippingAddress addressDTO  `json:"shippingAddress" validate:"required"`
	BillingAddress  *addressDTO `json:"billingAddress,omitempty" validate:"omitempty"`
	Email           string      `json:"email,omitempty" validate:"omitempty,email,max=254"`
	DiscountCode    string      `json:"discountCode,omitempty" validate:"max=64"`
	IdempotencyKey  string      `json:"idempotencyKey" validate:"required,max=255"`
}

// normalize canonicalizes fields the validator checks case-sensitively.
func (r *checkoutRequest) normalize() {
	r.ShippingAddress.Country = strings.ToUpper(strings.TrimSpace(r.ShippingAddress.Country))
	if r.BillingAddress != nil {
		r.BillingAddress.Country = strings.ToUpper(strings.TrimSpace(r.BillingAddress.Country))
	}
}

type intentRequest struct {
	OrderID string `json:"orderId" validate:"required,max=64"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=200"`
}

type simulateRequest struct {
	OrderID string `json:"orderId" validate:"required,max=64"`
	Outcome string `json:"outcome" validate:"required,oneof=succeeded failed"`
}

// decodeAndValidate reads a JSON body into dst and validates it.
// The returned error is already a client-facing message.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) (string, error) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			return codeInvalidPayload, fmt.Errorf("invalid JSON body: %w", err)
		}
	}
	if n, ok := dst.(interface{ normalize() }); ok {
		n.normalize()
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return codeValidationFailed, fmt.Errorf("%s failed %s", fieldPath(fe.Namespace()), fe.Tag())
		}
		return codeValidationFailed, err
	}
	return "", nil
}

// fieldPath drops the struct name from a validator namespace: checkoutRequest.shippingAddress.city -> shippingAddress.city.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
