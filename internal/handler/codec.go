package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	ogenjson "github.com/ogen-go/ogen/json"
	"github.com/shopspring/decimal"

	"github.com/xenking/rihla-backoffice/internal/domain"
	"github.com/xenking/rihla-backoffice/internal/domain/customer"
	"github.com/xenking/rihla-backoffice/internal/domain/inventory"
	"github.com/xenking/rihla-backoffice/internal/domain/invoice"
	"github.com/xenking/rihla-backoffice/internal/domain/order"
)

// maxBodySize caps request bodies.
const maxBodySize = 1 << 20

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if len(data) > maxBodySize {
		return nil, domain.Invalid("body", "is too large")
	}
	return data, nil
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(strings.Trim(n.String(), `"`))
}

// decodePlaceOrder parses the place-order body. Unknown fields are ignored.
// "apply_tax" is accepted as an alias of "apply_vat".
func decodePlaceOrder(data []byte) (order.PlaceOrderRequest, error) {
	var req order.PlaceOrderRequest
	if len(data) == 0 {
		return req, domain.Invalid("body", "is required")
	}

	d := jx.DecodeBytes(data)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "customer_name":
			req.Customer.Name, err = d.Str()
		case "customer_email":
			req.Customer.Email, err = d.Str()
		case "customer_phone":
			req.Customer.Phone, err = optStr(d)
		case "customer_address":
			req.Customer.Address, err = optStr(d)
		case "brand_id":
			req.BrandID, err = optStr(d)
		case "currency":
			req.Currency, err = optStr(d)
		case "apply_vat", "apply_tax":
			req.ApplyTax, err = d.Bool()
		case "shipping_charges":
			if d.Next() == jx.Null {
				return d.Null()
			}
			if req.Shipping, err = decodeDecimal(d); err != nil {
				return domain.Invalid("shipping_charges", "must be a number")
			}
		case "payment_method":
			req.PaymentMethod, err = optStr(d)
		case "status":
			req.Status, err = optStr(d)
		case "items":
			err = d.Arr(func(d *jx.Decoder) error {
				line, err := decodeLine(d)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, line)
				return nil
			})
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			return req, err
		}
		return req, domain.Invalid("body", err.Error())
	}
	return req, nil
}

func decodeLine(d *jx.Decoder) (order.LineRequest, error) {
	var line order.LineRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "product_id":
			v, err := d.Str()
			line.ProductID = v
			return err
		case "quantity":
			v, err := d.Int64()
			if err != nil {
				return domain.Invalid("quantity", "must be an integer")
			}
			if v > inventory.MaxQuantity {
				return domain.Invalid("quantity", fmt.Sprintf("must be at most %d", inventory.MaxQuantity))
			}
			line.Quantity = int(v)
			return nil
		default:
			return d.Skip()
		}
	})
	return line, err
}

func optStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeStatus(data []byte) (string, error) {
	var status string
	d := jx.DecodeBytes(data)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "status" {
			return d.Skip()
		}
		v, err := d.Str()
		status = v
		return err
	})
	if err != nil {
		return "", domain.Invalid("body", err.Error())
	}
	if status == "" {
		return "", domain.Invalid("status", "is required")
	}
	return status, nil
}

func money(e *jx.Encoder, field string, v decimal.Decimal) {
	e.FieldStart(field)
	e.Num(jx.Num(v.StringFixed(2)))
}

func encodeItem(e *jx.Encoder, it order.Item) {
	e.ObjStart()
	e.FieldStart("product_id")
	e.Str(it.ProductID)
	e.FieldStart("product_name")
	e.Str(it.ProductName)
	e.FieldStart("sku")
	e.Str(it.SKU)
	e.FieldStart("quantity")
	e.Int(it.Quantity)
	money(e, "price", it.UnitPrice)
	money(e, "total", it.LineTotal)
	e.ObjEnd()
}

func encodeOrderFields(e *jx.Encoder, o *order.Order) {
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("order_number")
	e.Str(o.OrderNumber)
	e.FieldStart("customer_name")
	e.Str(o.Customer.Name)
	e.FieldStart("customer_email")
	e.Str(o.Customer.Email)
	e.FieldStart("customer_phone")
	e.Str(o.Customer.Phone)
	e.FieldStart("customer_address")
	e.Str(o.Customer.Address)
	e.FieldStart("brand_id")
	e.Str(o.BrandID)
	e.FieldStart("brand_name")
	e.Str(o.BrandName)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		encodeItem(e, it)
	}
	e.ArrEnd()
	e.FieldStart("items_count")
	e.Int(len(o.Items))
	e.FieldStart("currency")
	e.Str(o.Currency)
	e.FieldStart("apply_vat")
	e.Bool(o.ApplyTax)
	money(e, "subtotal", o.Subtotal)
	e.FieldStart("vat_rate")
	e.Num(jx.Num(o.TaxRate.String()))
	money(e, "vat_amount", o.TaxAmount)
	money(e, "shipping_charges", o.Shipping)
	money(e, "total", o.Total)
	e.FieldStart("payment_method")
	e.Str(o.PaymentMethod)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("created_by")
	e.Str(o.CreatedBy)
	e.FieldStart("created_at")
	ogenjson.EncodeDateTime(e, o.CreatedAt)
	e.FieldStart("updated_at")
	ogenjson.EncodeDateTime(e, o.UpdatedAt)
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	encodeOrderFields(e, o)
	e.ObjEnd()
}

func encodeCustomer(e *jx.Encoder, c *customer.Customer) {
	e.ObjStart()
	if c.ID != "" {
		e.FieldStart("id")
		e.Str(c.ID)
	}
	e.FieldStart("name")
	e.Str(c.Name)
	e.FieldStart("email")
	e.Str(c.Email)
	e.FieldStart("phone")
	e.Str(c.Phone)
	e.FieldStart("total_orders")
	e.Int(c.TotalOrders)
	money(e, "lifetime_value", c.LifetimeValue)
	if !c.CreatedAt.IsZero() {
		e.FieldStart("created_at")
		ogenjson.EncodeDateTime(e, c.CreatedAt)
	}
	if !c.LastOrderAt.IsZero() {
		e.FieldStart("last_order_at")
		ogenjson.EncodeDateTime(e, c.LastOrderAt)
	}
	e.ObjEnd()
}

// encodePlaced writes the order with the customer record it credited.
func encodePlaced(e *jx.Encoder, res *order.PlaceOrderResult) {
	e.ObjStart()
	encodeOrderFields(e, res.Order)
	if res.Customer != nil {
		e.FieldStart("customer")
		encodeCustomer(e, res.Customer)
	}
	e.ObjEnd()
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ObjStart()
	e.FieldStart("orders")
	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
	e.FieldStart("count")
	e.Int(len(orders))
	e.ObjEnd()
}

func encodeInvoice(e *jx.Encoder, inv *invoice.Invoice) {
	e.ObjStart()
	e.FieldStart("invoice_id")
	e.Str(inv.ID)
	e.FieldStart("invoice_date")
	ogenjson.EncodeDateTime(e, inv.Date)
	e.FieldStart("customer")
	encodeCustomer(e, &inv.Customer)
	e.FieldStart("orders")
	e.ArrStart()
	for i := range inv.Orders {
		encodeOrder(e, &inv.Orders[i])
	}
	e.ArrEnd()
	money(e, "total_amount", inv.TotalAmount)
	e.ObjEnd()
}

func encodeOrderInvoice(e *jx.Encoder, inv *invoice.OrderInvoice) {
	e.ObjStart()
	e.FieldStart("invoice_id")
	e.Str(inv.ID)
	e.FieldStart("invoice_date")
	ogenjson.EncodeDateTime(e, inv.Date)
	e.FieldStart("customer")
	encodeCustomer(e, &inv.Customer)
	e.FieldStart("order")
	encodeOrder(e, &inv.Order)
	e.ObjEnd()
}

// writeJSON encodes with fn and writes the result with status.
func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
