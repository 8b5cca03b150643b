package generic

// =============================================================================
// RECORD VALIDATION - Shared by every Writer implementation
// =============================================================================

func ValidateFarm(f Farm) error {
	if f.Name == "" {
		return &RecordError{Kind: EntityFarm, Field: "name", Reason: "is required"}
	}
	return nil
}

func ValidateFlock(f Flock) error {
	switch {
	case f.FarmID == "":
		return &RecordError{Kind: EntityFlock, Field: "farm_id", Reason: "is required"}
	case f.InitialCount < 0:
		return &RecordError{Kind: EntityFlock, Field: "initial_count", Reason: "must not be negative"}
	case f.PlacedOn.IsZero():
		return &RecordError{Kind: EntityFlock, Field: "placed_on", Reason: "is required"}
	}
	return nil
}

func ValidateProduction(r ProductionRecord) error {
	switch {
	case r.FarmID == "":
		return &RecordError{Kind: EntityProduction, Field: "farm_id", Reason: "is required"}
	case r.Date.IsZero():
		return &RecordError{Kind: EntityProduction, Field: "date", Reason: "is required"}
	case r.Small < 0 || r.Medium < 0 || r.Large < 0 || r.Broken < 0:
		return &RecordError{Kind: EntityProduction, Field: "counts", Reason: "must not be negative"}
	}
	return nil
}

func ValidateFeedIssue(f FeedIssue) error {
	switch {
	case f.FarmID == "":
		return &RecordError{Kind: EntityFeedIssue, Field: "farm_id", Reason: "is required"}
	case f.ShedID == "":
		return &RecordError{Kind: EntityFeedIssue, Field: "shed_id", Reason: "is required"}
	case f.Date.IsZero():
		return &RecordError{Kind: EntityFeedIssue, Field: "date", Reason: "is required"}
	case f.QuantityKg < 0:
		return &RecordError{Kind: EntityFeedIssue, Field: "quantity_kg", Reason: "must not be negative"}
	}
	return nil
}

func ValidateFeedPurchase(p FeedPurchase) error {
	switch {
	case p.FarmID == "":
		return &RecordError{Kind: EntityFeedPurchase, Field: "farm_id", Reason: "is required"}
	case p.QuantityKg.IsNegative():
		return &RecordError{Kind: EntityFeedPurchase, Field: "quantity_kg", Reason: "must not be negative"}
	case p.UnitCost.IsNegative():
		return &RecordError{Kind: EntityFeedPurchase, Field: "unit_cost", Reason: "must not be negative"}
	}
	return nil
}

func ValidateLedgerEntry(e LedgerEntry) error {
	switch {
	case e.PartyID == "":
		return &RecordError{Kind: EntityLedgerEntry, Field: "party_id", Reason: "is required"}
	case e.Date.IsZero():
		return &RecordError{Kind: EntityLedgerEntry, Field: "date", Reason: "is required"}
	}
	return nil
}

func ValidateMortality(m MortalityEvent) error {
	switch {
	case m.FlockID == "":
		return &RecordError{Kind: EntityMortality, Field: "flock_id", Reason: "is required"}
	case m.Date.IsZero():
		return &RecordError{Kind: EntityMortality, Field: "date", Reason: "is required"}
	case m.Count < 0:
		return &RecordError{Kind: EntityMortality, Field: "count", Reason: "must not be negative"}
	}
	return nil
}
