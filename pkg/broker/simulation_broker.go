package broker

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"nof0-api/internal/metrics"
)

const maintenanceMargin = 0.004

var defaultMockPrices = map[string]float64{
	"BTC":  100000,
	"ETH":  3800,
	"SOL":  180,
	"BNB":  650,
	"DOGE": 0.35,
}

// FaultInjector lets tests force specific RawExchange calls to fail,
// exercising the Protected-Order Protocol's retry/rollback paths (spec §8
// scenario 4). kind is one of "main", "stop_loss", "take_profit", "close".
type FaultInjector func(kind string, req OrderRequest) error

// simExchange is the in-memory RawExchange backing SimulationBroker (spec
// §4.4).
type simExchange struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64

	positions map[string]Position
	balance   float64

	latency bool
	inject  FaultInjector
}

func newSimExchange(initialBalance float64) *simExchange {
	prices := make(map[string]float64, len(defaultMockPrices))
	for k, v := range defaultMockPrices {
		prices[k] = v
	}
	return &simExchange{
		rng:       rand.New(rand.NewSource(1)),
		prices:    prices,
		positions: make(map[string]Position),
		balance:   initialBalance,
		latency:   true,
	}
}

func (s *simExchange) priceFor(base string) float64 {
	p, ok := s.prices[base]
	if !ok {
		p = s.rng.Float64()*1000 + 100
	}
	drift := 1 + (s.rng.Float64()*0.01 - 0.005)
	p *= drift
	s.prices[base] = p
	return p
}

func (s *simExchange) sleepLatency() {
	if !s.latency {
		return
	}
	d := time.Duration(100+s.rng.Intn(101)) * time.Millisecond
	time.Sleep(d)
}

func classifyOrder(req OrderRequest) string {
	switch {
	case req.ReduceOnly && req.Price > 0 && req.Type == Market:
		return "stop_loss"
	case req.ReduceOnly && req.Price > 0 && req.Type == Limit:
		return "take_profit"
	case req.ReduceOnly:
		return "close"
	default:
		return "main"
	}
}

func (s *simExchange) LastPrice(ctx context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.priceFor(baseAsset(symbol)), nil
}

func (s *simExchange) CreateOrder(ctx context.Context, req OrderRequest) (string, error) {
	s.sleepLatency()
	s.mu.Lock()
	defer s.mu.Unlock()

	kind := classifyOrder(req)
	if s.inject != nil {
		if err := s.inject(kind, req); err != nil {
			return "", err
		}
	}

	base := baseAsset(req.Symbol)
	current := s.priceFor(base)

	switch kind {
	case "stop_loss", "take_profit":
		return "sim-" + kind + "-" + uuid.NewString(), nil
	case "close":
		pos, ok := s.positions[req.Symbol]
		if !ok {
			return "", fmt.Errorf("simulation: no position to close for %s", req.Symbol)
		}
		s.balance += positionPnl(pos, current)
		delete(s.positions, req.Symbol)
		return "sim-close-" + uuid.NewString(), nil
	default:
		side := Long
		if req.Side == Sell {
			side = Short
		}
		if existing, ok := s.positions[req.Symbol]; ok && existing.Side != side {
			s.balance += positionPnl(existing, current)
			delete(s.positions, req.Symbol)
			return "sim-flip-" + uuid.NewString(), nil
		}
		leverage := req.Leverage
		if leverage <= 0 {
			leverage = 1
		}
		liqOffset := 1.0/float64(leverage) - maintenanceMargin
		liq := current * (1 - liqOffset)
		if side == Short {
			liq = current * (1 + liqOffset)
		}
		s.positions[req.Symbol] = Position{
			Symbol:           req.Symbol,
			Side:             side,
			Amount:           req.Amount,
			EntryPrice:       current,
			MarkPrice:        current,
			UnrealizedPnl:    0,
			Leverage:         leverage,
			LiquidationPrice: liq,
		}
		return "sim-open-" + uuid.NewString(), nil
	}
}

func (s *simExchange) FetchPositions(ctx context.Context, symbols []string) ([]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := toSymbolSet(symbols)
	out := make([]Position, 0, len(s.positions))
	for symbol, pos := range s.positions {
		if want != nil {
			if _, ok := want[strings.ToUpper(symbol)]; !ok {
				continue
			}
		}
		current := s.priceFor(baseAsset(symbol))
		pos.MarkPrice = current
		pos.UnrealizedPnl = positionPnl(pos, current)
		s.positions[symbol] = pos
		out = append(out, pos)
	}
	return out, nil
}

func (s *simExchange) FetchAccount(ctx context.Context) (AccountSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var usedMargin, totalPnL float64
	for symbol, pos := range s.positions {
		current := s.priceFor(baseAsset(symbol))
		pnl := positionPnl(pos, current)
		usedMargin += pos.Amount * pos.EntryPrice / float64(pos.Leverage)
		totalPnL += pnl
	}
	return AccountSnapshot{
		Balance:         s.balance + totalPnL,
		UsedMargin:      usedMargin,
		AvailableMargin: s.balance - usedMargin,
		TotalPnL:        totalPnL,
		TotalMargin:     usedMargin,
	}, nil
}

func (s *simExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

func (s *simExchange) SetMarginMode(ctx context.Context, symbol string, mode MarginMode) error {
	return nil
}

func positionPnl(pos Position, currentPrice float64) float64 {
	if pos.Side == Long {
		return (currentPrice - pos.EntryPrice) * pos.Amount
	}
	return (pos.EntryPrice - currentPrice) * pos.Amount
}

func baseAsset(symbol string) string {
	return strings.ToUpper(coin(symbol))
}

// SimulationBroker is the spec §4.4 in-memory broker used for mock (--dev)
// runs and tests: the same Protected-Order Protocol engine as ExchangeBroker,
// driven against an in-process simExchange instead of a live venue.
type SimulationBroker struct {
	engine protocolEngine
	sim    *simExchange
}

// NewSimulationBroker seeds the simulator with initialBalance and the
// default mock price table (spec §4.4).
func NewSimulationBroker(initialBalance float64, clock Clock) *SimulationBroker {
	sim := newSimExchange(initialBalance)
	return &SimulationBroker{
		engine: newProtocolEngine(sim, clock),
		sim:    sim,
	}
}

// SetMetrics attaches instrumentation to the order protocol; optional.
func (b *SimulationBroker) SetMetrics(m *metrics.Metrics) {
	b.engine.metrics = m
}

// SetFaultInjector installs a hook used by tests to force specific
// RawExchange calls to fail (spec §8 scenario 4).
func (b *SimulationBroker) SetFaultInjector(fn FaultInjector) {
	b.sim.mu.Lock()
	b.sim.inject = fn
	b.sim.mu.Unlock()
}

// DisableLatency turns off the simulated 100-200ms per-call delay, for
// fast-running tests.
func (b *SimulationBroker) DisableLatency() {
	b.sim.mu.Lock()
	b.sim.latency = false
	b.sim.mu.Unlock()
}

func (b *SimulationBroker) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	return b.engine.placeOrder(ctx, req)
}

func (b *SimulationBroker) GetPositions(ctx context.Context, symbols []string) ([]Position, error) {
	positions, err := b.sim.FetchPositions(ctx, symbols)
	if err != nil {
		return nil, nil
	}
	out := make([]Position, 0, len(positions))
	for _, p := range positions {
		if p.Amount != 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

func (b *SimulationBroker) GetAccountInfo(ctx context.Context) (AccountSnapshot, error) {
	snap, err := b.sim.FetchAccount(ctx)
	if err != nil {
		return AccountSnapshot{}, nil
	}
	return snap, nil
}

func (b *SimulationBroker) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return b.sim.SetLeverage(ctx, symbol, leverage)
}

func (b *SimulationBroker) SetMarginMode(ctx context.Context, symbol string, mode MarginMode) error {
	return b.sim.SetMarginMode(ctx, symbol, mode)
}

// SimState is a snapshot of the simulator's internal books, for test
// assertions (spec §4.4 getState).
type SimState struct {
	Positions map[string]Position
	Balance   float64
}

// GetState returns a copy of the simulator's current positions and balance.
func (b *SimulationBroker) GetState() SimState {
	b.sim.mu.Lock()
	defer b.sim.mu.Unlock()
	positions := make(map[string]Position, len(b.sim.positions))
	for k, v := range b.sim.positions {
		positions[k] = v
	}
	return SimState{Positions: positions, Balance: b.sim.balance}
}

// Reset clears all positions and resets the balance, for test isolation
// (spec §4.4 reset).
func (b *SimulationBroker) Reset(initialBalance float64) {
	b.sim.mu.Lock()
	defer b.sim.mu.Unlock()
	b.sim.positions = make(map[string]Position)
	b.sim.balance = initialBalance
}
