package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"nof0-api/internal/metrics"
	"nof0-api/pkg/tradeerr"
)

const maxProtectAttempts = 3

// protocolEngine drives the Protected-Order Protocol
// (CONFIGURE→SIZE→MAIN_ORDER→PROTECT→ROLLBACK) against a RawExchange. Both
// ExchangeBroker and SimulationBroker embed one so the retry/rollback logic
// exists exactly once (spec §4.3, §9).
type protocolEngine struct {
	raw     RawExchange
	clock   Clock
	metrics *metrics.Metrics // optional; nil disables instrumentation
}

func newProtocolEngine(raw RawExchange, clock Clock) protocolEngine {
	if clock == nil {
		clock = RealClock{}
	}
	return protocolEngine{raw: raw, clock: clock}
}

// placeOrder implements spec §4.3 end-to-end.
func (e protocolEngine) placeOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if req.ReduceOnly && (req.StopLoss > 0 || req.TakeProfit > 0) {
		return OrderResult{}, tradeerr.New(tradeerr.Validation, "reduce-only orders must not carry protective prices")
	}

	// CONFIGURE: non-fatal; warnings swallowed.
	if req.Leverage > 0 {
		if err := e.raw.SetLeverage(ctx, req.Symbol, req.Leverage); err != nil {
			logx.Infof("broker: setLeverage(%s,%d) warning: %v", req.Symbol, req.Leverage, err)
		}
	}
	mode := Cross
	if err := e.raw.SetMarginMode(ctx, req.Symbol, mode); err != nil {
		logx.Infof("broker: setMarginMode(%s) warning: %v", req.Symbol, err)
	}

	// SIZE
	sized := req
	if !req.HasAmount() {
		if req.ReduceOnly {
			return OrderResult{}, tradeerr.New(tradeerr.Validation, "reduce-only order requires an explicit amount")
		}
		last, err := e.raw.LastPrice(ctx, req.Symbol)
		if err != nil || last <= 0 {
			return OrderResult{}, tradeerr.Wrap(tradeerr.Transient, "fetch last price for sizing", err)
		}
		leverage := req.Leverage
		if leverage <= 0 {
			leverage = 1
		}
		sized.Amount = (req.Cost * float64(leverage)) / last
	}

	// MAIN_ORDER
	mainOrderID, err := e.raw.CreateOrder(ctx, sized)
	if err != nil {
		return OrderResult{
			Success: false,
			Error:   fmt.Sprintf("main order failed: %v", err),
		}, nil
	}

	if e.metrics != nil {
		e.metrics.OrdersTotal.Inc()
	}
	result := OrderResult{Success: true, OrderID: mainOrderID}

	// PROTECT: only if not reduce-only and at least one protection requested.
	if sized.ReduceOnly || (sized.StopLoss <= 0 && sized.TakeProfit <= 0) {
		return result, nil
	}

	protectSide := oppositeSide(sized.Side)

	if sized.StopLoss > 0 {
		slID, slErr := e.retryProtect(ctx, "stop-loss", func() (string, error) {
			return e.raw.CreateOrder(ctx, OrderRequest{
				Symbol:     sized.Symbol,
				Side:       protectSide,
				Type:       Market,
				Amount:     sized.Amount,
				Price:      sized.StopLoss,
				ReduceOnly: true,
			})
		})
		if slErr != nil {
			return e.rollback(ctx, sized, mainOrderID, slErr)
		}
		result.StopLossOrderID = slID
	}

	if sized.TakeProfit > 0 {
		tpID, tpErr := e.retryProtect(ctx, "take-profit", func() (string, error) {
			return e.raw.CreateOrder(ctx, OrderRequest{
				Symbol:     sized.Symbol,
				Side:       protectSide,
				Type:       Limit,
				Amount:     sized.Amount,
				Price:      sized.TakeProfit,
				ReduceOnly: true,
			})
		})
		if tpErr != nil {
			// Non-critical iff stop-loss succeeded (or wasn't requested).
			logx.Infof("broker: take-profit failed for %s after retries: %v", sized.Symbol, tpErr)
		} else {
			result.TakeProfitOrderID = tpID
		}
	}

	return result, nil
}

// retryProtect runs fn up to maxProtectAttempts times with the spec's
// linear backoff: attempt i waits i*1000ms before the next try; attempt 1
// has no pre-wait.
func (e protocolEngine) retryProtect(ctx context.Context, label string, fn func() (string, error)) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= maxProtectAttempts; attempt++ {
		id, err := fn()
		if err == nil {
			return id, nil
		}
		lastErr = err
		logx.Infof("broker: %s attempt %d/%d failed: %v", label, attempt, maxProtectAttempts, err)
		if e.metrics != nil {
			e.metrics.OrderRetries.Inc()
		}
		if attempt == maxProtectAttempts {
			break
		}
		wait := time.Duration(attempt) * time.Second
		if err := e.clock.Sleep(ctx, wait); err != nil {
			return "", err
		}
	}
	return "", tradeerr.Wrap(tradeerr.Transient, fmt.Sprintf("%s exhausted %d attempts", label, maxProtectAttempts), lastErr)
}

// rollback issues an equal-size opposing reduce-only market order to unwind
// an unprotected position (spec §4.3 ROLLBACK substate).
func (e protocolEngine) rollback(ctx context.Context, sized OrderRequest, mainOrderID string, cause error) (OrderResult, error) {
	if e.metrics != nil {
		e.metrics.OrderRollbacks.Inc()
	}
	_, err := e.raw.CreateOrder(ctx, OrderRequest{
		Symbol:     sized.Symbol,
		Side:       oppositeSide(sized.Side),
		Type:       Market,
		Amount:     sized.Amount,
		ReduceOnly: true,
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.ManualInterventions.Inc()
		}
		critical := tradeerr.CriticalManualIntervention(mainOrderID, err)
		return OrderResult{
			Success:  false,
			OrderID:  mainOrderID,
			Error:    critical.Error(),
			Critical: true,
		}, nil
	}
	return OrderResult{
		Success: false,
		OrderID: mainOrderID,
		Error:   "protection failed; position closed",
	}, nil
}

func oppositeSide(s Side) Side {
	if s == Buy {
		return Sell
	}
	return Buy
}
