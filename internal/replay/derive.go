package replay

import (
	"sort"

	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/bundle"
	"github.com/rauterfrank-ui/Peak-Trade-sub008/internal/exitcode"
)

// Fill is one executed fill derived from the event stream.
type Fill struct {
	Seq     int64
	OrderID string
	Symbol  string
	Side    string
	Qty     string
	Price   string
}

// Position is the per-symbol aggregate over all fills: signed net quantity
// and side-signed notional (sum of qty*price, BUY positive).
type Position struct {
	Symbol   string
	NetQty   string
	Notional string
}

// Outputs are the derived results of a replay.
type Outputs struct {
	Fills     []Fill
	Positions []Position
}

const (
	sideBuy  = "BUY"
	sideSell = "SELL"
)

type orderState struct {
	symbol     string
	canceledAt int64 // -1 while open
}

type foldState struct {
	orders   map[string]*orderState
	net      map[string]decimal
	notional map[string]decimal
}

// Fold deterministically derives fills and positions from an ordered event
// stream. It is a pure function: no wall clock, no randomness, no I/O.
func Fold(events []bundle.Event) (*Outputs, error) {
	st := &foldState{
		orders:   make(map[string]*orderState),
		net:      make(map[string]decimal),
		notional: make(map[string]decimal),
	}
	out := &Outputs{}

	for i := range events {
		e := &events[i]
		switch e.EventType {
		case bundle.EventOrderAccepted:
			if err := st.applyAccepted(e); err != nil {
				return nil, err
			}
		case bundle.EventOrderCanceled:
			if err := st.applyCanceled(e); err != nil {
				return nil, err
			}
		case bundle.EventOrderFill:
			fill, err := st.applyFill(e)
			if err != nil {
				return nil, err
			}
			out.Fills = append(out.Fills, fill)
		default:
			return nil, exitcode.Errorf(exitcode.ContractViolation,
				"seq %d: unknown event_type %q", e.Seq, e.EventType)
		}
	}

	symbols := make([]string, 0, len(st.net))
	for sym := range st.net {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		out.Positions = append(out.Positions, Position{
			Symbol:   sym,
			NetQty:   st.net[sym].String(),
			Notional: st.notional[sym].String(),
		})
	}
	return out, nil
}

func (st *foldState) applyAccepted(e *bundle.Event) error {
	orderID, err := e.PayloadString("order_id")
	if err != nil {
		return err
	}
	symbol, err := e.PayloadString("symbol")
	if err != nil {
		return err
	}
	if _, exists := st.orders[orderID]; exists {
		return exitcode.Errorf(exitcode.ContractViolation,
			"seq %d: order %q accepted twice", e.Seq, orderID)
	}
	st.orders[orderID] = &orderState{symbol: symbol, canceledAt: -1}
	return nil
}

func (st *foldState) applyCanceled(e *bundle.Event) error {
	orderID, err := e.PayloadString("order_id")
	if err != nil {
		return err
	}
	order, ok := st.orders[orderID]
	if !ok {
		return exitcode.Errorf(exitcode.ContractViolation,
			"seq %d: cancel for unknown order %q", e.Seq, orderID)
	}
	if order.canceledAt >= 0 {
		return exitcode.Errorf(exitcode.ContractViolation,
			"seq %d: order %q canceled twice", e.Seq, orderID)
	}
	order.canceledAt = e.Seq
	return nil
}

func (st *foldState) applyFill(e *bundle.Event) (Fill, error) {
	fill := Fill{Seq: e.Seq}
	var err error
	if fill.OrderID, err = e.PayloadString("order_id"); err != nil {
		return Fill{}, err
	}
	if fill.Symbol, err = e.PayloadString("symbol"); err != nil {
		return Fill{}, err
	}
	if fill.Side, err = e.PayloadString("side"); err != nil {
		return Fill{}, err
	}
	if fill.Side != sideBuy && fill.Side != sideSell {
		return Fill{}, exitcode.Errorf(exitcode.ContractViolation,
			"seq %d: side must be BUY or SELL, got %q", e.Seq, fill.Side)
	}
	rawQty, err := e.PayloadString("qty")
	if err != nil {
		return Fill{}, err
	}
	rawPrice, err := e.PayloadString("price")
	if err != nil {
		return Fill{}, err
	}
	qty, err := parseDecimal(rawQty)
	if err != nil {
		return Fill{}, exitcode.Errorf(exitcode.ContractViolation, "seq %d: qty: %v", e.Seq, err)
	}
	if qty.sign() <= 0 {
		return Fill{}, exitcode.Errorf(exitcode.ContractViolation,
			"seq %d: fill qty must be positive, got %q", e.Seq, rawQty)
	}
	price, err := parseDecimal(rawPrice)
	if err != nil {
		return Fill{}, exitcode.Errorf(exitcode.ContractViolation, "seq %d: price: %v", e.Seq, err)
	}
	if price.sign() < 0 {
		return Fill{}, exitcode.Errorf(exitcode.ContractViolation,
			"seq %d: fill price must not be negative, got %q", e.Seq, rawPrice)
	}
	fill.Qty = qty.String()
	fill.Price = price.String()

	if order, ok := st.orders[fill.OrderID]; ok && order.symbol != fill.Symbol {
		return Fill{}, exitcode.Errorf(exitcode.ContractViolation,
			"seq %d: fill symbol %q does not match order %q symbol %q",
			e.Seq, fill.Symbol, fill.OrderID, order.symbol)
	}

	signedQty := qty
	if fill.Side == sideSell {
		signedQty = qty.neg()
	}
	net, ok := st.net[fill.Symbol]
	if !ok {
		net = zeroDecimal()
	}
	st.net[fill.Symbol] = net.add(signedQty)

	notional, ok := st.notional[fill.Symbol]
	if !ok {
		notional = zeroDecimal()
	}
	st.notional[fill.Symbol] = notional.add(signedQty.mul(price))

	return fill, nil
}

// outputsValue converts derived outputs to canonical value trees matching
// the embedded snapshot layout.
func outputsValue(out *Outputs) (fills, positions any) {
	fv := make([]any, 0, len(out.Fills))
	for _, f := range out.Fills {
		fv = append(fv, map[string]any{
			"order_id": f.OrderID,
			"price":    f.Price,
			"qty":      f.Qty,
			"seq":      f.Seq,
			"side":     f.Side,
			"symbol":   f.Symbol,
		})
	}
	pv := make([]any, 0, len(out.Positions))
	for _, p := range out.Positions {
		pv = append(pv, map[string]any{
			"net_qty":  p.NetQty,
			"notional": p.Notional,
			"symbol":   p.Symbol,
		})
	}
	return fv, pv
}

// Derive is the bundle.DeriveFunc used to embed expected-output snapshots
// at build time. Replay uses the identical fold, so an unchanged bundle
// always reproduces its own snapshots.
func Derive(events []bundle.Event) (fills, positions any, err error) {
	out, err := Fold(events)
	if err != nil {
		return nil, nil, err
	}
	fills, positions = outputsValue(out)
	return fills, positions, nil
}

var _ bundle.DeriveFunc = Derive
