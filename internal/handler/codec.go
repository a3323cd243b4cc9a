package handler

import (
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/salon-pos/internal/domain/customer"
	"github.com/xenking/salon-pos/internal/domain/line"
	"github.com/xenking/salon-pos/internal/domain/order"
	"github.com/xenking/salon-pos/internal/domain/pricing"
	"github.com/xenking/salon-pos/internal/domain/session"
)

func badRequest(format string, args ...any) error {
	return &requestError{err: errors.Errorf(format, args...)}
}

// decodeBody reads a JSON object and hands each field to fn. An empty body is
// an empty object.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return &requestError{err: errors.Wrap(err, "read body")}
	}
	if len(data) == 0 {
		return nil
	}
	if err := jx.DecodeBytes(data).Obj(fn); err != nil {
		return &requestError{err: errors.Wrap(err, "decode body")}
	}
	return nil
}

// requestError is a client side decoding failure.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

// decodeDecimal accepts numbers and numeric strings.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = string(n)
	default:
		return decimal.Zero, errors.Errorf("expected number, got %s", d.Next())
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse decimal %q", raw)
	}
	return v, nil
}

func encodeDecimal(e *jx.Encoder, v decimal.Decimal) {
	e.Raw([]byte(v.String()))
}

func encodeDecimalMap(e *jx.Encoder, m map[string]decimal.Decimal) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	e.Obj(func(e *jx.Encoder) {
		for _, name := range names {
			e.Field(name, func(e *jx.Encoder) { encodeDecimal(e, m[name]) })
		}
	})
}

func encodeStrings(e *jx.Encoder, ss []string) {
	e.Arr(func(e *jx.Encoder) {
		for _, s := range ss {
			e.Str(s)
		}
	})
}

func encodeEmployee(e *jx.Encoder, emp *line.Employee) {
	if emp == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(emp.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(emp.Name) })
	})
}

func encodeCustomer(e *jx.Encoder, c *customer.TaxContext) {
	if c == nil {
		e.Null()
		return
	}
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(c.CustomerID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(c.Name) })
		e.Field("jurisdiction", func(e *jx.Encoder) { e.Str(string(c.Jurisdiction)) })
	})
}

func encodeLine(e *jx.Encoder, it line.Item) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(it.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
		e.Field("kind", func(e *jx.Encoder) { e.Str(string(it.Kind)) })
		e.Field("unitPrice", func(e *jx.Encoder) { encodeDecimal(e, it.UnitPrice) })
		e.Field("listPrice", func(e *jx.Encoder) { encodeDecimal(e, it.ListPrice) })
		e.Field("quantity", func(e *jx.Encoder) { encodeDecimal(e, it.Quantity) })
		e.Field("isFree", func(e *jx.Encoder) { e.Bool(it.IsFree) })
		e.Field("promotionDiscount", func(e *jx.Encoder) { encodeDecimal(e, it.PromotionDiscount) })
		e.Field("note", func(e *jx.Encoder) { e.Str(it.Note) })
		e.Field("employee", func(e *jx.Encoder) { encodeEmployee(e, it.Employee) })
		e.Field("appliedPromotions", func(e *jx.Encoder) { encodeStrings(e, it.AppliedPromotions) })
		if it.SourceItemID != "" {
			e.Field("sourceItemId", func(e *jx.Encoder) { e.Str(it.SourceItemID) })
		}
		e.Field("taxes", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, c := range it.Taxes {
					e.Obj(func(e *jx.Encoder) {
						e.Field("name", func(e *jx.Encoder) { e.Str(c.Name) })
						e.Field("rate", func(e *jx.Encoder) { encodeDecimal(e, c.Rate) })
					})
				}
			})
		})
	})
}

func encodeLines(e *jx.Encoder, lines []line.Item) {
	e.Arr(func(e *jx.Encoder) {
		for _, it := range lines {
			encodeLine(e, it)
		}
	})
}

func encodeSummary(e *jx.Encoder, s pricing.Summary) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("subtotal", func(e *jx.Encoder) { encodeDecimal(e, s.Subtotal) })
		e.Field("promotionDiscountTotal", func(e *jx.Encoder) { encodeDecimal(e, s.PromotionDiscountTotal) })
		e.Field("manualDiscount", func(e *jx.Encoder) { encodeDecimal(e, s.ManualDiscountValue) })
		e.Field("taxTotal", func(e *jx.Encoder) { encodeDecimal(e, s.TaxTotal) })
		e.Field("taxBreakdown", func(e *jx.Encoder) { encodeDecimalMap(e, s.TaxBreakdown) })
		e.Field("taxIncluded", func(e *jx.Encoder) { e.Bool(s.TaxIncluded) })
		e.Field("serviceCharge", func(e *jx.Encoder) { encodeDecimal(e, s.ServiceCharge) })
		e.Field("grandTotal", func(e *jx.Encoder) { encodeDecimal(e, s.GrandTotal) })
		e.Field("itemCount", func(e *jx.Encoder) { e.Int(s.ItemCount) })
		e.Field("totalQuantity", func(e *jx.Encoder) { encodeDecimal(e, s.TotalQuantity) })
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, l := range s.Lines {
					e.Obj(func(e *jx.Encoder) {
						e.Field("index", func(e *jx.Encoder) { e.Int(l.Index) })
						e.Field("id", func(e *jx.Encoder) { e.Str(l.ID) })
						e.Field("isFree", func(e *jx.Encoder) { e.Bool(l.IsFree) })
						e.Field("gross", func(e *jx.Encoder) { encodeDecimal(e, l.Gross) })
						e.Field("promotionDiscount", func(e *jx.Encoder) { encodeDecimal(e, l.PromotionDiscount) })
						e.Field("tax", func(e *jx.Encoder) { encodeDecimal(e, l.Tax) })
					})
				}
			})
		})
		e.Field("warnings", func(e *jx.Encoder) { encodeStrings(e, s.Warnings) })
	})
}

// encodeSession writes the full terminal view: state, lines and totals.
func encodeSession(e *jx.Encoder, s *session.Session) {
	o := s.Order
	st := o.State()
	sum := o.Summary()

	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(s.ID) })
		e.Field("branchId", func(e *jx.Encoder) { e.Str(s.BranchID) })
		e.Field("terminalId", func(e *jx.Encoder) { e.Str(s.TerminalID) })
		e.Field("openedAt", func(e *jx.Encoder) { e.Str(s.OpenedAt.UTC().Format(time.RFC3339)) })
		e.Field("restored", func(e *jx.Encoder) { e.Bool(s.Restored) })
		e.Field("busy", func(e *jx.Encoder) { e.Bool(o.Busy()) })
		e.Field("canUndo", func(e *jx.Encoder) { e.Bool(o.CanUndo()) })
		e.Field("canRedo", func(e *jx.Encoder) { e.Bool(o.CanRedo()) })
		e.Field("selected", func(e *jx.Encoder) { e.Int(o.Selected()) })
		e.Field("orderType", func(e *jx.Encoder) { e.Str(st.OrderType) })
		e.Field("orderDate", func(e *jx.Encoder) { e.Str(st.OrderDate.UTC().Format(time.RFC3339)) })
		e.Field("customer", func(e *jx.Encoder) { encodeCustomer(e, st.Customer) })
		e.Field("employee", func(e *jx.Encoder) { encodeEmployee(e, st.Employee) })
		e.Field("discount", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("amount", func(e *jx.Encoder) { encodeDecimal(e, st.ManualDiscount.Amount) })
				e.Field("type", func(e *jx.Encoder) { e.Str(string(st.ManualDiscount.Type)) })
			})
		})
		e.Field("serviceCharge", func(e *jx.Encoder) { encodeDecimal(e, st.ServiceCharge) })
		e.Field("lines", func(e *jx.Encoder) { encodeLines(e, st.Lines) })
		e.Field("summary", func(e *jx.Encoder) { encodeSummary(e, sum) })
	})
}

func encodeReceipt(e *jx.Encoder, r *order.Receipt) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("success", func(e *jx.Encoder) { e.Bool(r.Success) })
		e.Field("message", func(e *jx.Encoder) { e.Str(r.Message) })
		e.Field("id", func(e *jx.Encoder) { e.Str(r.ID) })
	})
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}
