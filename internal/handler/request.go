package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/orderdesk/api/internal/pricing"
	"github.com/orderdesk/api/internal/service"
	"github.com/orderdesk/api/internal/ws"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		return pricing.CheckAmount(fl.Field().String()) == nil
	})
	return v
}

// flexString accepts a JSON string, number or null and keeps it as trimmed
// text. Form inputs arrive as either depending on the client.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = flexString(n.String())
	return nil
}

func (s flexString) String() string { return string(s) }

// orderInput is one row as submitted by a client.
type orderInput struct {
	ID       int64      `json:"id"`
	Date     flexString `json:"date"`
	User     flexString `json:"user" validate:"required"`
	Phone    flexString `json:"phone" validate:"required"`
	Title    flexString `json:"title" validate:"required"`
	Link     flexString `json:"link" validate:"required"`
	PageName flexString `json:"pageName" validate:"required"`
	UsdPrice flexString `json:"usdPrice" validate:"required,amount"`
	Qty      flexString `json:"qty" validate:"required"`
	Deposit  flexString `json:"deposit" validate:"required,amount"`

	// Derived on the server; accepted and ignored.
	CustomerPrice flexString `json:"customerPrice"`
	Remaining     flexString `json:"remaining"`
	Profit        flexString `json:"profit"`
}

func (in orderInput) raw() service.RawRow {
	return service.RawRow{
		Date:     in.Date.String(),
		User:     in.User.String(),
		Phone:    in.Phone.String(),
		Title:    in.Title.String(),
		Link:     in.Link.String(),
		PageName: in.PageName.String(),
		UsdPrice: in.UsdPrice.String(),
		Qty:      in.Qty.String(),
		Deposit:  in.Deposit.String(),
	}
}

func (in orderInput) row() service.OrderRow {
	return service.OrderRow{
		ID:       in.ID,
		Date:     in.Date.String(),
		User:     in.User.String(),
		Phone:    in.Phone.String(),
		Title:    in.Title.String(),
		Link:     in.Link.String(),
		PageName: in.PageName.String(),
		UsdPrice: pricing.ParseAmount(in.UsdPrice.String()),
		Qty:      pricing.ParseQuantity(in.Qty.String()),
		Deposit:  pricing.ParseAmount(in.Deposit.String()),
	}
}

// rowError lists the missing fields of one submitted row.
type rowError struct {
	Row    int               `json:"row"`
	Fields map[string]string `json:"fields"`
}

func validateRow(index int, in orderInput) *rowError {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	fields := map[string]string{}
	if errs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range errs {
			fields[fe.Field()] = validationMessage(fe)
		}
	} else {
		fields["_"] = err.Error()
	}
	return &rowError{Row: index, Fields: fields}
}

// checkAmounts applies only the amount bounds, for rows that were already
// validated when staged.
func checkAmounts(index int, in orderInput) *rowError {
	fields := map[string]string{}
	if pricing.CheckAmount(in.UsdPrice.String()) != nil {
		fields["usdPrice"] = amountMessage
	}
	if pricing.CheckAmount(in.Deposit.String()) != nil {
		fields["deposit"] = amountMessage
	}
	if len(fields) == 0 {
		return nil
	}
	return &rowError{Row: index, Fields: fields}
}

var amountMessage = "must not exceed " + pricing.MaxAmount.StringFixed(pricing.Places)

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "amount":
		return amountMessage
	}
	return "is invalid"
}

// --- Response types ---

type orderResponse struct {
	ID            int64       `json:"id"`
	Date          string      `json:"date"`
	User          string      `json:"user"`
	Phone         string      `json:"phone"`
	Title         string      `json:"title"`
	Link          string      `json:"link"`
	PageName      string      `json:"pageName"`
	UsdPrice      json.Number `json:"usdPrice"`
	Qty           int32       `json:"qty"`
	CustomerPrice json.Number `json:"customerPrice"`
	Deposit       json.Number `json:"deposit"`
	Remaining     json.Number `json:"remaining"`
	Profit        json.Number `json:"profit"`
	CreatedAt     *time.Time  `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time  `json:"updatedAt,omitempty"`
}

func toOrderResponse(r service.OrderRow) orderResponse {
	resp := orderResponse{
		ID:            r.ID,
		Date:          r.Date,
		User:          r.User,
		Phone:         r.Phone,
		Title:         r.Title,
		Link:          r.Link,
		PageName:      r.PageName,
		UsdPrice:      num(r.UsdPrice),
		Qty:           r.Qty,
		CustomerPrice: num(r.CustomerPrice),
		Deposit:       num(r.Deposit),
		Remaining:     num(r.Remaining),
		Profit:        num(r.Profit),
	}
	if !r.CreatedAt.IsZero() {
		t := r.CreatedAt
		resp.CreatedAt = &t
	}
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		resp.UpdatedAt = &t
	}
	return resp
}

func toOrderResponses(rows []service.OrderRow) []orderResponse {
	out := make([]orderResponse, len(rows))
	for i, r := range rows {
		out[i] = toOrderResponse(r)
	}
	return out
}

// num renders an amount as a JSON number with three decimals.
func num(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(pricing.Places))
}

// --- Live updates ---

// Publisher delivers change notifications to websocket subscribers.
// Satisfied by *ws.Hub.
type Publisher interface {
	Publish(topic string, event ws.Event)
}

type changePayload struct {
	Action  string  `json:"action"`
	IDs     []int64 `json:"ids,omitempty"`
	BatchID int64   `json:"batchId,omitempty"`
	Count   int64   `json:"count,omitempty"`
}

func publish(pub Publisher, topic, eventType string, payload changePayload) {
	if pub == nil {
		return
	}
	event, err := ws.NewEvent(eventType, payload)
	if err != nil {
		return
	}
	pub.Publish(topic, event)
}
