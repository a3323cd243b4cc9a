package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/salon-pos/internal/domain/line"
	"github.com/xenking/salon-pos/internal/domain/order"
	"github.com/xenking/salon-pos/internal/domain/pricing"
	"github.com/xenking/salon-pos/internal/domain/session"
	"github.com/xenking/salon-pos/pkg/httpmiddleware"
)

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "id")
}

func lineIndex(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "index")
	i, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("invalid line index %q", raw)
	}
	return i, nil
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, s *session.Session, err error) {
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSession(e, s) })
}

// mutate runs fn on the session order and answers with the updated view.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, op string, fn func(o *order.Order) error) {
	s, err := h.sessions.Do(r.Context(), sessionID(r), op, fn)
	h.respond(w, r, s, err)
}

// mutateLine is mutate for commands addressing one line.
func (h *Handler) mutateLine(w http.ResponseWriter, r *http.Request, op string, fn func(o *order.Order, i int) error) {
	i, err := lineIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.mutate(w, r, op, func(o *order.Order) error { return fn(o, i) })
}

func (h *Handler) openSession(w http.ResponseWriter, r *http.Request) {
	var branchID, terminalID string
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "branchId":
			branchID, err = d.Str()
		case "terminalId":
			terminalID, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	if terminalID == "" {
		terminalID = strings.TrimSpace(r.Header.Get(httpmiddleware.TerminalHeader))
	}

	s, err := h.sessions.Open(r.Context(), branchID, terminalID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeSession(e, s) })
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(sessionID(r))
	h.respond(w, r, s, err)
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.Context(), sessionID(r)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listLines(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(sessionID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeLines(e, s.Order.Lines()) })
}

func (h *Handler) getSummary(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(sessionID(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeSummary(e, s.Order.Summary()) })
}

func (h *Handler) addItem(w http.ResponseWriter, r *http.Request) {
	var itemID string
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "itemId" {
			return d.Skip()
		}
		var err error
		itemID, err = d.Str()
		return err
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	if itemID == "" {
		h.fail(w, r, badRequest("itemId is required"))
		return
	}

	s, err := h.sessions.AddItem(r.Context(), sessionID(r), itemID)
	h.respond(w, r, s, err)
}

// decodeAmount reads a body holding one decimal field.
func decodeAmount(w http.ResponseWriter, r *http.Request, field string) (decimal.Decimal, error) {
	var (
		v   decimal.Decimal
		set bool
	)
	err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != field {
			return d.Skip()
		}
		var err error
		v, err = decodeDecimal(d)
		set = err == nil
		return err
	})
	if err != nil {
		return v, err
	}
	if !set {
		return v, badRequest("%s is required", field)
	}
	return v, nil
}

func (h *Handler) setQuantity(w http.ResponseWriter, r *http.Request) {
	qty, err := decodeAmount(w, r, "quantity")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.mutateLine(w, r, "update_quantity", func(o *order.Order, i int) error {
		return o.UpdateQuantity(i, qty)
	})
}

func (h *Handler) increment(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, "increment", (*order.Order).Increment)
}

func (h *Handler) decrement(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, "decrement", (*order.Order).Decrement)
}

func (h *Handler) removeLine(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, "remove_item", (*order.Order).RemoveItem)
}

func (h *Handler) selectLine(w http.ResponseWriter, r *http.Request) {
	i, err := lineIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.sessions.Get(sessionID(r))
	if err == nil {
		s.Order.Select(i)
	}
	h.respond(w, r, s, err)
}

func (h *Handler) assignEmployee(w http.ResponseWriter, r *http.Request) {
	var (
		emp   line.Employee
		price *decimal.Decimal
	)
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "employeeId":
			emp.ID, err = d.Str()
		case "employeeName":
			emp.Name, err = d.Str()
		case "price":
			if d.Next() == jx.Null {
				return d.Null()
			}
			var v decimal.Decimal
			if v, err = decodeDecimal(d); err == nil {
				price = &v
			}
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	if emp.ID == "" {
		h.fail(w, r, badRequest("employeeId is required"))
		return
	}
	h.mutateLine(w, r, "assign_employee", func(o *order.Order, i int) error {
		return o.AssignEmployee(i, emp, price)
	})
}

func (h *Handler) setNote(w http.ResponseWriter, r *http.Request) {
	var note string
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "note" {
			return d.Skip()
		}
		var err error
		note, err = d.Str()
		return err
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	h.mutateLine(w, r, "set_note", func(o *order.Order, i int) error {
		return o.SetLineNote(i, note)
	})
}

func (h *Handler) setDiscount(w http.ResponseWriter, r *http.Request) {
	var (
		amount decimal.Decimal
		typ    string
	)
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "amount":
			amount, err = decodeDecimal(d)
		case "type":
			typ, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	h.mutate(w, r, "set_discount", func(o *order.Order) error {
		return o.SetManualDiscount(amount, pricing.DiscountType(typ))
	})
}

func (h *Handler) clearDiscount(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "clear_discount", (*order.Order).ClearManualDiscount)
}

func (h *Handler) setServiceCharge(w http.ResponseWriter, r *http.Request) {
	amount, err := decodeAmount(w, r, "amount")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.mutate(w, r, "set_service_charge", func(o *order.Order) error {
		return o.SetServiceCharge(amount)
	})
}

func (h *Handler) setCustomer(w http.ResponseWriter, r *http.Request) {
	var customerID string
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "customerId" {
			return d.Skip()
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		var err error
		customerID, err = d.Str()
		return err
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	s, err := h.sessions.SetCustomer(r.Context(), sessionID(r), customerID)
	h.respond(w, r, s, err)
}

func (h *Handler) setEmployee(w http.ResponseWriter, r *http.Request) {
	var emp line.Employee
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "employeeId":
			emp.ID, err = d.Str()
		case "employeeName":
			emp.Name, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	h.mutate(w, r, "set_employee", func(o *order.Order) error {
		if emp.ID == "" {
			return o.SetEmployee(nil)
		}
		return o.SetEmployee(&emp)
	})
}

func (h *Handler) setOrderType(w http.ResponseWriter, r *http.Request) {
	var typ string
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "type" {
			return d.Skip()
		}
		var err error
		typ, err = d.Str()
		return err
	}); err != nil {
		h.fail(w, r, err)
		return
	}
	h.mutate(w, r, "set_order_type", func(o *order.Order) error {
		return o.SetOrderType(typ)
	})
}

func (h *Handler) undo(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "undo", func(o *order.Order) error {
		_, err := o.Undo()
		return err
	})
}

func (h *Handler) redo(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "redo", func(o *order.Order) error {
		_, err := o.Redo()
		return err
	})
}

func (h *Handler) clear(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, "clear", (*order.Order).Clear)
}

func (h *Handler) refreshPromotions(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.RefreshPromotions(r.Context(), sessionID(r))
	h.respond(w, r, s, err)
}

func (h *Handler) reloadSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.ReloadSettings(r.Context(), sessionID(r))
	h.respond(w, r, s, err)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	status := order.StatusRunning
	if err := decodeBody(w, r, func(d *jx.Decoder, key string) error {
		if key != "status" {
			return d.Skip()
		}
		raw, err := d.Str()
		status = order.Status(raw)
		return err
	}); err != nil {
		h.fail(w, r, err)
		return
	}

	receipt, err := h.sessions.Submit(r.Context(), sessionID(r), status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeReceipt(e, receipt) })
}
