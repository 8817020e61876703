package admission

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	now   = time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	today = time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
)

// baseInput is the happy path of scenario 1: open period, published course
// slot with free seats, validated candidate, no restrictions.
func baseInput() Input {
	slotDate := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	return Input{
		Candidate: Candidate{
			Active:      true,
			Profile:     "high_school_student",
			RecordValid: true,
		},
		Slot: SlotView{
			Published:         true,
			Kind:              "course",
			Date:              slotDate,
			Start:             start,
			RegistrationLimit: start.Add(-24 * time.Hour),
			AvailableSeats:    3,
		},
		Period: PeriodView{
			RegistrationStart: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
			ImmersionEnd:      time.Date(2025, 4, 30, 0, 0, 0, 0, time.UTC),
		},
		Counts: Counts{PeriodRemaining: 2, TrainingRemaining: 1},
		Now:    now,
		Today:  today,
	}
}

func TestDecideAllow(t *testing.T) {
	d := Decide(baseInput())
	assert.Equal(t, Allow, d.Outcome)
	assert.False(t, d.Revive)
}

func TestDecideOrder(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Input)
		outcome Outcome
		reason  string
	}{
		{"unpublished", func(in *Input) { in.Slot.Published = false }, Deny, ReasonUnpublished},
		{"inactive account", func(in *Input) { in.Candidate.Active = false }, Deny, ReasonAccount},
		{"invalid record", func(in *Input) { in.Candidate.RecordValid = false }, Deny, ReasonRecord},
		{"expired attestation", func(in *Input) { in.Candidate.ExpiredAttestation = true }, Deny, ReasonAttestations},
		{"past slot", func(in *Input) {
			in.Slot.Date = today.AddDate(0, 0, -1)
		}, Deny, ReasonPastSlot},
		{"same day already started", func(in *Input) {
			in.Slot.Date = today
			in.Slot.Start = now.Add(-time.Minute)
		}, Deny, ReasonPastSlot},
		{"registration not open", func(in *Input) {
			in.Period.RegistrationStart = today.AddDate(0, 0, 10)
		}, Deny, ReasonNotYetOpen},
		{"limit passed, candidate", func(in *Input) {
			in.Slot.RegistrationLimit = now.Add(-time.Second)
		}, Deny, ReasonPassedRegDate},
		{"no seat", func(in *Input) { in.Slot.AvailableSeats = 0 }, Deny, ReasonNoSeat},
		{"already registered", func(in *Input) { in.Counts.ActiveExists = true }, Deny, ReasonAlreadyRegistered},
		{"quota exhausted", func(in *Input) { in.Counts.PeriodRemaining = 0 }, Deny, ReasonQuota},
		{"training quota exhausted", func(in *Input) {
			in.Counts.TrainingQuotaEnabled = true
			in.Counts.TrainingRemaining = 0
		}, Deny, ReasonTrainingQuota},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.mutate(&in)
			d := Decide(in)
			assert.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestDecideAtRegistrationLimit(t *testing.T) {
	// Exactly at the limit is still allowed; one second past is not.
	in := baseInput()
	in.Slot.RegistrationLimit = now
	assert.Equal(t, Allow, Decide(in).Outcome)

	in.Slot.RegistrationLimit = now.Add(-time.Second)
	assert.Equal(t, Deny, Decide(in).Outcome)
}

func TestDecideForcePath(t *testing.T) {
	// A failing level restriction is overridable for a manager.
	in := baseInput()
	in.Slot.LevelsRestricted = true
	in.Slot.AllowedHighSchoolLevelIDs = []uint{2}
	in.Candidate.HighSchoolLevelID = 1
	in.CanForce = true

	d := Decide(in)
	assert.Equal(t, ForceRequired, d.Outcome)
	assert.Equal(t, ReasonRestrictions, d.Reason)

	in.Force = true
	d = Decide(in)
	assert.Equal(t, Allow, d.Outcome)
}

func TestDecideForceReasons(t *testing.T) {
	// Quota, training quota and passed date produce force_update for
	// override-capable callers.
	for _, tt := range []struct {
		name   string
		mutate func(*Input)
		reason string
	}{
		{"quota", func(in *Input) { in.Counts.PeriodRemaining = 0 }, ReasonQuota},
		{"training quota", func(in *Input) {
			in.Counts.TrainingQuotaEnabled = true
			in.Counts.TrainingRemaining = 0
		}, ReasonTrainingQuota},
		{"passed date", func(in *Input) {
			in.Slot.RegistrationLimit = now.Add(-time.Hour)
		}, ReasonPassedRegDate},
	} {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			in.CanForce = true
			tt.mutate(&in)
			d := Decide(in)
			assert.Equal(t, ForceRequired, d.Outcome)
			assert.Equal(t, tt.reason, d.Reason)

			in.Force = true
			assert.Equal(t, Allow, Decide(in).Outcome)
		})
	}
}

func TestDecideForceNeverBypassesHardDenials(t *testing.T) {
	// Forcing past an overridable predicate still runs the later
	// predicates: an existing active registration denies even for a
	// manager forcing past a failed restriction or a passed limit.
	in := baseInput()
	in.Slot.LevelsRestricted = true
	in.Slot.AllowedHighSchoolLevelIDs = []uint{2}
	in.Candidate.HighSchoolLevelID = 1
	in.CanForce = true
	in.Force = true
	in.Counts.ActiveExists = true

	d := Decide(in)
	assert.Equal(t, Deny, d.Outcome)
	assert.Equal(t, ReasonAlreadyRegistered, d.Reason)

	in = baseInput()
	in.Slot.RegistrationLimit = now.Add(-time.Second)
	in.CanForce = true
	in.Force = true
	in.Counts.ActiveExists = true

	d = Decide(in)
	assert.Equal(t, Deny, d.Outcome)
	assert.Equal(t, ReasonAlreadyRegistered, d.Reason)
}

func TestDecideNoSeatNeverForceRequired(t *testing.T) {
	in := baseInput()
	in.Slot.AvailableSeats = 0
	in.CanForce = true

	// Without the explicit flag the manager still gets a plain denial.
	d := Decide(in)
	assert.Equal(t, Deny, d.Outcome)
	assert.Equal(t, ReasonNoSeat, d.Reason)

	in.Force = true
	assert.Equal(t, Allow, Decide(in).Outcome)
}

func TestDecideRestrictions(t *testing.T) {
	t.Run("establishment match via high school", func(t *testing.T) {
		in := baseInput()
		in.Slot.EstablishmentsRestricted = true
		in.Slot.AllowedHighSchoolIDs = []uint{7}
		in.Candidate.HighSchoolID = 7
		assert.Equal(t, Allow, Decide(in).Outcome)
	})

	t.Run("establishment mismatch", func(t *testing.T) {
		in := baseInput()
		in.Slot.EstablishmentsRestricted = true
		in.Slot.AllowedEstablishmentIDs = []uint{1}
		in.Candidate.EstablishmentID = 2
		d := Decide(in)
		assert.Equal(t, Deny, d.Outcome)
		assert.Equal(t, ReasonRestrictions, d.Reason)
	})

	t.Run("level match via student level", func(t *testing.T) {
		in := baseInput()
		in.Slot.LevelsRestricted = true
		in.Slot.AllowedStudentLevelIDs = []uint{4}
		in.Candidate.StudentLevelID = 4
		assert.Equal(t, Allow, Decide(in).Outcome)
	})

	t.Run("bachelor type and teachings", func(t *testing.T) {
		in := baseInput()
		in.Slot.BachelorsRestricted = true
		in.Slot.AllowedBachelorTypeIDs = []uint{1}
		in.Slot.BachelorTeachingsApply = true
		in.Slot.AllowedBachelorTeachingIDs = []uint{10, 11}
		in.Candidate.BachelorTypeID = 1
		in.Candidate.BachelorTeachingIDs = []uint{11, 12}
		assert.Equal(t, Allow, Decide(in).Outcome)

		in.Candidate.BachelorTeachingIDs = []uint{12}
		d := Decide(in)
		assert.Equal(t, Deny, d.Outcome)
		assert.Equal(t, ReasonRestrictions, d.Reason)
	})

	t.Run("bachelor mention required", func(t *testing.T) {
		in := baseInput()
		in.Slot.BachelorsRestricted = true
		in.Slot.AllowedBachelorTypeIDs = []uint{2}
		in.Slot.BachelorMentionApplies = true
		in.Slot.AllowedBachelorMentionIDs = []uint{5}
		in.Candidate.BachelorTypeID = 2
		in.Candidate.BachelorMentionID = 5
		assert.Equal(t, Allow, Decide(in).Outcome)

		in.Candidate.BachelorMentionID = 6
		assert.Equal(t, Deny, Decide(in).Outcome)
	})
}

func TestDecideQuotaSkippedForVisitsAndEvents(t *testing.T) {
	for _, kind := range []string{"visit", "event"} {
		in := baseInput()
		in.Slot.Kind = kind
		in.Counts.PeriodRemaining = 0
		in.Counts.TrainingQuotaEnabled = true
		in.Counts.TrainingRemaining = 0
		assert.Equal(t, Allow, Decide(in).Outcome, kind)
	}
}

func TestDecideRevive(t *testing.T) {
	in := baseInput()
	in.Counts.CancelledExists = true
	d := Decide(in)
	assert.Equal(t, Allow, d.Outcome)
	assert.True(t, d.Revive)
}
