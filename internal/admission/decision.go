// Package admission implements the slot admission decision as a pure
// function over a prefetched snapshot. It never touches the database;
// internal/registration assembles the Input and applies the outcome
// transactionally.
package admission

import "time"

type Outcome int

const (
	// Allow lets the registration proceed.
	Allow Outcome = iota
	// ForceRequired means the standard decision would deny, but the
	// caller holds the override capability and may retry with force.
	ForceRequired
	// Deny refuses the registration.
	Deny
)

// Deny / force reasons, stable machine-readable strings surfaced in API
// responses.
const (
	ReasonUnpublished     = "unpublished"
	ReasonAccount         = "account"
	ReasonRecord          = "record"
	ReasonAttestations    = "attestations"
	ReasonPastSlot        = "past_slot"
	ReasonNotYetOpen      = "not_yet_open"
	ReasonPassedRegDate   = "passed_registration_date"
	ReasonNoSeat          = "no_seat"
	ReasonRestrictions    = "restrictions"
	ReasonAlreadyRegistered = "already_registered"
	ReasonQuota           = "quota"
	ReasonTrainingQuota   = "training_quota"
)

type Decision struct {
	Outcome Outcome
	Reason  string
	// Revive is set when a cancelled immersion for (person, slot) exists
	// and must be revived instead of inserting a new row.
	Revive bool
}

func deny(reason string) Decision  { return Decision{Outcome: Deny, Reason: reason} }
func force(reason string) Decision { return Decision{Outcome: ForceRequired, Reason: reason} }

// Candidate is the read-only view of the person registering.
type Candidate struct {
	Active bool
	// Profile is empty for callers without a candidate profile
	// (managers registering on a candidate's behalf still pass the
	// candidate's profile here).
	Profile     string
	RecordValid bool
	// ExpiredAttestation blocks even TO_REVALIDATE records.
	ExpiredAttestation bool

	EstablishmentID uint
	HighSchoolID    uint

	HighSchoolLevelID   uint
	PostBachelorLevelID uint
	StudentLevelID      uint

	BachelorTypeID      uint
	BachelorMentionID   uint
	BachelorTeachingIDs []uint
}

// SlotView is the read-only view of the slot under decision.
type SlotView struct {
	Published bool
	Kind      string // course | visit | event
	Date      time.Time
	Start     time.Time
	// RegistrationLimit = Start - registration_limit_delay.
	RegistrationLimit time.Time

	AvailableSeats int

	EstablishmentsRestricted bool
	AllowedEstablishmentIDs  []uint
	AllowedHighSchoolIDs     []uint

	LevelsRestricted          bool
	AllowedHighSchoolLevelIDs []uint
	AllowedPostBachelorLevelIDs []uint
	AllowedStudentLevelIDs    []uint

	BachelorsRestricted       bool
	AllowedBachelorTypeIDs    []uint
	AllowedBachelorMentionIDs []uint
	AllowedBachelorTeachingIDs []uint

	// BachelorMentionApplies / BachelorTeachingsApply gate the two
	// secondary bachelor predicates on the candidate's bachelor kind.
	BachelorMentionApplies   bool
	BachelorTeachingsApply   bool
}

// PeriodView is the resolved period of the slot date. Resolution failures
// are configuration errors handled by the caller before Decide runs.
type PeriodView struct {
	RegistrationStart time.Time
	ImmersionEnd      time.Time
}

// Counts carries the registration counters computed under the slot lock.
type Counts struct {
	ActiveExists    bool
	CancelledExists bool
	// PeriodRemaining = allowance - active course immersions in period.
	PeriodRemaining int
	// TrainingQuota is enabled system-wide and a limit applies to this
	// slot's training.
	TrainingQuotaEnabled bool
	TrainingRemaining    int
}

type Input struct {
	Candidate Candidate
	Slot      SlotView
	Period    PeriodView
	Counts    Counts
	Now       time.Time
	Today     time.Time
	// CanForce is true for callers holding the override capability
	// (operators, master managers, owning managers).
	CanForce bool
	// Force is the explicit override flag of the request.
	Force bool
}

// Decide evaluates the admission predicates in a fixed order; the
// first failing predicate yields the outcome.
func Decide(in Input) Decision {
	// An overridable predicate only short-circuits when the caller cannot
	// force past it: a forced registration still runs every later
	// predicate, so hard denials like the duplicate check are never
	// bypassed.
	forced := in.CanForce && in.Force
	overridable := func(reason string) Decision {
		if in.CanForce {
			return force(reason)
		}
		return deny(reason)
	}

	// 1. Slot published.
	if !in.Slot.Published {
		return deny(ReasonUnpublished)
	}

	// 2. Account and record.
	if !in.Candidate.Active {
		return deny(ReasonAccount)
	}
	if !in.Candidate.RecordValid {
		return deny(ReasonRecord)
	}

	// 3. Attestations up to date.
	if in.Candidate.ExpiredAttestation {
		return deny(ReasonAttestations)
	}

	// 4. Temporal window.
	if in.Slot.Date.Before(in.Today) {
		return deny(ReasonPastSlot)
	}
	if in.Slot.Date.Equal(in.Today) && !in.Slot.Start.After(in.Now) {
		return deny(ReasonPastSlot)
	}
	if in.Today.Before(in.Period.RegistrationStart) {
		return deny(ReasonNotYetOpen)
	}
	if !forced && (in.Today.After(in.Period.ImmersionEnd) || in.Now.After(in.Slot.RegistrationLimit)) {
		return overridable(ReasonPassedRegDate)
	}

	// 5. Capacity. Never a force_update response: managers may still
	// override with the explicit flag.
	if !forced && in.Slot.AvailableSeats <= 0 {
		return deny(ReasonNoSeat)
	}

	// 6. Restrictions.
	if !forced && !restrictionsMatch(in.Candidate, in.Slot) {
		return overridable(ReasonRestrictions)
	}

	// 7. Duplicate.
	if in.Counts.ActiveExists {
		return deny(ReasonAlreadyRegistered)
	}

	// 8. Quotas, course slots only.
	if in.Slot.Kind == "course" && !forced {
		if in.Counts.PeriodRemaining <= 0 {
			return overridable(ReasonQuota)
		}
		if in.Counts.TrainingQuotaEnabled && in.Counts.TrainingRemaining <= 0 {
			return overridable(ReasonTrainingQuota)
		}
	}

	return Decision{Outcome: Allow, Revive: in.Counts.CancelledExists}
}

func restrictionsMatch(c Candidate, s SlotView) bool {
	if s.EstablishmentsRestricted {
		if !contains(s.AllowedEstablishmentIDs, c.EstablishmentID) &&
			!contains(s.AllowedHighSchoolIDs, c.HighSchoolID) {
			return false
		}
	}
	if s.LevelsRestricted {
		if !contains(s.AllowedHighSchoolLevelIDs, c.HighSchoolLevelID) &&
			!contains(s.AllowedPostBachelorLevelIDs, c.PostBachelorLevelID) &&
			!contains(s.AllowedStudentLevelIDs, c.StudentLevelID) {
			return false
		}
	}
	if s.BachelorsRestricted {
		if !contains(s.AllowedBachelorTypeIDs, c.BachelorTypeID) {
			return false
		}
		if s.BachelorMentionApplies && !contains(s.AllowedBachelorMentionIDs, c.BachelorMentionID) {
			return false
		}
		if s.BachelorTeachingsApply && !intersects(s.AllowedBachelorTeachingIDs, c.BachelorTeachingIDs) {
			return false
		}
	}
	return true
}

func contains(ids []uint, id uint) bool {
	if id == 0 {
		return false
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func intersects(a, b []uint) bool {
	for _, v := range b {
		if contains(a, v) {
			return true
		}
	}
	return false
}
