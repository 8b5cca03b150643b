/*
scenarios.go - Demo datasets for testing and demonstrations

PURPOSE:

	Populates the store with realistic farm data so every report has
	something to show. Each scenario creates farms, sheds, flocks, parties
	and a few weeks of production, feed and ledger records.

AVAILABLE SCENARIOS:

	layer-farm:    One farm, two sheds, one flock, four weeks of records
	mixed-feed:    Same farm with a mid-month feed change in shed B
	two-farms:     Two farms sharing a feed supplier and a customer

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Drop every cached report (Reset publishes no mutation events)
 3. Create farm structure and parties
 4. Add daily records through the store writers

USAGE VIA API:

	POST /api/demo/seed
	{"scenario_id": "layer-farm", "start": "2024-03-01"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Report handlers that read this data
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/warp/poultry-reports/generic"
)

// ScenarioDTO describes a demo dataset.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SeedRequest selects a scenario. Start defaults to the first day of the
// current month.
type SeedRequest struct {
	ScenarioID string `json:"scenario_id"`
	Start      string `json:"start"`
}

// resetter is implemented by stores that can drop every record.
type resetter interface {
	Reset(ctx context.Context) error
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "layer-farm",
		Name:        "Layer Farm",
		Description: "One farm, two sheds, one flock, four weeks of production and feed",
	},
	{
		ID:          "mixed-feed",
		Name:        "Mixed Feed",
		Description: "Layer farm where shed B switches feed mid-month",
	},
	{
		ID:          "two-farms",
		Name:        "Two Farms",
		Description: "Two farms sharing a feed supplier and an egg customer",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	current := h.currentScenario
	h.scenarioMu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// SeedDemo resets the store and loads a scenario.
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	var req SeedRequest
	if !decodeBody(w, r, &req) {
		return
	}

	today := generic.Today()
	start := generic.StartOfMonth(today.Year(), today.Month())
	if req.Start != "" {
		var err error
		if start, err = parseDateField("start", req.Start); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start date", err)
			return
		}
	}

	var load func(context.Context, generic.TimePoint) error
	switch req.ScenarioID {
	case "layer-farm":
		load = h.loadLayerFarmScenario
	case "mixed-feed":
		load = h.loadMixedFeedScenario
	case "two-farms":
		load = h.loadTwoFarmsScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	ctx := r.Context()
	if err := h.resetStore(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""

	if err := load(ctx, start); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID, "start": start.Key()})
}

// ResetStore clears all data and every cached report.
func (h *Handler) ResetStore(w http.ResponseWriter, r *http.Request) {
	h.scenarioMu.Lock()
	defer h.scenarioMu.Unlock()

	if err := h.resetStore(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) resetStore(ctx context.Context) error {
	rs, ok := h.Store.(resetter)
	if !ok {
		return errors.New("store does not support reset")
	}
	if err := rs.Reset(ctx); err != nil {
		return err
	}
	h.Reports.Cache.InvalidateAll()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// farmSeed describes one farm worth of demo records.
type farmSeed struct {
	farm       generic.Farm
	sheds      []generic.Shed
	flock      generic.Flock
	days       int
	baseEggs   int64
	feedTypes  map[generic.ShedID]func(day int) string
	feedPerDay float64
}

func (h *Handler) loadLayerFarmScenario(ctx context.Context, start generic.TimePoint) error {
	if err := h.seedParties(ctx, start); err != nil {
		return err
	}
	return h.seedFarm(ctx, start, layerFarm("farm-north", "North Ridge", nil))
}

func (h *Handler) loadMixedFeedScenario(ctx context.Context, start generic.TimePoint) error {
	if err := h.seedParties(ctx, start); err != nil {
		return err
	}
	switchAt := func(day int) string {
		if day < 14 {
			return "Layer Mash"
		}
		return "Layer Pellet"
	}
	return h.seedFarm(ctx, start, layerFarm("farm-north", "North Ridge", switchAt))
}

func (h *Handler) loadTwoFarmsScenario(ctx context.Context, start generic.TimePoint) error {
	if err := h.seedParties(ctx, start); err != nil {
		return err
	}
	if err := h.seedFarm(ctx, start, layerFarm("farm-north", "North Ridge", nil)); err != nil {
		return err
	}
	south := layerFarm("farm-south", "South Valley", nil)
	south.baseEggs = 3400
	south.flock.InitialCount = 4200
	return h.seedFarm(ctx, start, south)
}

func layerFarm(id, name string, shedBFeed func(day int) string) farmSeed {
	farmID := generic.FarmID(id)
	shedA := generic.ShedID(id + "-shed-a")
	shedB := generic.ShedID(id + "-shed-b")
	if shedBFeed == nil {
		shedBFeed = func(int) string { return "Layer Mash" }
	}
	return farmSeed{
		farm: generic.Farm{ID: farmID, Name: name, Location: "Bekaa"},
		sheds: []generic.Shed{
			{ID: shedA, FarmID: farmID, Name: "Shed A", Capacity: 3000},
			{ID: shedB, FarmID: farmID, Name: "Shed B", Capacity: 3000},
		},
		flock: generic.Flock{
			ID:           generic.FlockID(id + "-flock-1"),
			FarmID:       farmID,
			ShedID:       shedA,
			Breed:        "Lohmann Brown",
			InitialCount: 5000,
		},
		days:     28,
		baseEggs: 4100,
		feedTypes: map[generic.ShedID]func(int) string{
			shedA: func(int) string { return "Layer Mash" },
			shedB: shedBFeed,
		},
		feedPerDay: 280,
	}
}

func (h *Handler) seedParties(ctx context.Context, start generic.TimePoint) error {
	parties := []generic.Party{
		{ID: "party-feedco", Name: "FeedCo Supplies", Kind: "supplier"},
		{ID: "party-market", Name: "City Egg Market", Kind: "customer"},
	}
	for _, p := range parties {
		if _, err := h.Store.SaveParty(ctx, p); err != nil {
			return err
		}
	}

	entries := []generic.LedgerEntry{
		{PartyID: "party-market", Date: start.AddDays(6), Description: "Eggs week 1", Debit: generic.NewMoney(2450, 219275000)},
		{PartyID: "party-market", Date: start.AddDays(9), Description: "Payment received", Credit: generic.NewMoney(2000, 179000000)},
		{PartyID: "party-market", Date: start.AddDays(13), Description: "Eggs week 2", Debit: generic.NewMoney(2510, 224645000)},
		{PartyID: "party-feedco", Date: start, Description: "Opening feed order", Credit: generic.NewMoney(3900, 349050000)},
		{PartyID: "party-feedco", Date: start.AddDays(15), Description: "Paid on account", Debit: generic.NewMoney(3900, 349050000)},
	}
	for _, e := range entries {
		if _, err := h.Store.AddLedgerEntry(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) seedFarm(ctx context.Context, start generic.TimePoint, seed farmSeed) error {
	if _, err := h.Store.SaveFarm(ctx, seed.farm); err != nil {
		return err
	}
	for _, s := range seed.sheds {
		if _, err := h.Store.SaveShed(ctx, s); err != nil {
			return err
		}
	}
	seed.flock.PlacedOn = start.AddDays(-120)
	if _, err := h.Store.SaveFlock(ctx, seed.flock); err != nil {
		return err
	}

	purchases := []generic.FeedPurchase{
		{FarmID: seed.farm.ID, Date: start, FeedType: "Layer Mash", QuantityKg: decimal.NewFromInt(10000), UnitCost: decimal.RequireFromString("0.39")},
		{FarmID: seed.farm.ID, Date: start.AddDays(14), FeedType: "Layer Mash", QuantityKg: decimal.NewFromInt(6000), UnitCost: decimal.RequireFromString("0.42")},
		{FarmID: seed.farm.ID, Date: start.AddDays(13), FeedType: "Layer Pellet", QuantityKg: decimal.NewFromInt(4000), UnitCost: decimal.RequireFromString("0.45")},
	}
	for _, p := range purchases {
		if _, err := h.Store.AddFeedPurchase(ctx, p); err != nil {
			return err
		}
	}

	for day := 0; day < seed.days; day++ {
		date := start.AddDays(day)
		// Gentle upward trend with a weekly dip so the forecast has a slope.
		eggs := seed.baseEggs + int64(day*6) - int64(day%7)*15
		if _, err := h.Store.AddProduction(ctx, generic.ProductionRecord{
			FarmID:  seed.farm.ID,
			ShedID:  seed.flock.ShedID,
			FlockID: seed.flock.ID,
			Date:    date,
			Small:   eggs * 15 / 100,
			Medium:  eggs * 45 / 100,
			Large:   eggs * 38 / 100,
			Broken:  eggs * 2 / 100,
		}); err != nil {
			return err
		}

		for _, s := range seed.sheds {
			if day%2 == 1 && s.ID != seed.flock.ShedID {
				continue
			}
			kg := seed.feedPerDay
			if _, err := h.Store.AddFeedIssue(ctx, generic.FeedIssue{
				FarmID:     seed.farm.ID,
				ShedID:     s.ID,
				FlockID:    seed.flock.ID,
				Date:       date,
				FeedType:   seed.feedTypes[s.ID](day),
				QuantityKg: kg,
				Cost:       generic.NewMoney(kg*0.4, kg*0.4*89500),
			}); err != nil {
				return err
			}
		}

		if day%5 == 2 {
			if _, err := h.Store.AddMortality(ctx, generic.MortalityEvent{
				FarmID:  seed.farm.ID,
				FlockID: seed.flock.ID,
				Date:    date,
				Count:   int64(2 + day%3),
				Cause:   "natural",
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
