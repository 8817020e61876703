package exports

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/settings"
)

// MailingFilter scopes a mailing-list projection. With PeriodID set only
// persons holding an active registration on a slot of that period are
// listed.
type MailingFilter struct {
	PeriodID *uint
}

// validStatuses are the record states that still admit registration.
var validStatuses = []models.RecordStatus{models.RecordValidated, models.RecordToRevalidate}

// MailingLists builds the {list_address: [emails]} projection. List
// membership requires an active account and a record in a valid state.
func MailingLists(ctx context.Context, db *gorm.DB, st *settings.Store, f MailingFilter) (map[string][]string, error) {
	lists := make(map[string][]string)

	global := st.String(ctx, models.SettingGlobalMailingList, "")

	seen := make(map[string]bool)
	for _, table := range []string{"high_school_student_records", "student_records", "visitor_records"} {
		q := db.Table("people").
			Select("DISTINCT people.email").
			Joins("JOIN "+table+" r ON r.person_id = people.id").
			Where("people.active = ?", true).
			Where("r.status IN ?", validStatuses)
		if f.PeriodID != nil {
			q = q.
				Joins("JOIN immersions i ON i.person_id = people.id AND i.cancellation_type_id IS NULL").
				Joins("JOIN slots s ON s.id = i.slot_id").
				Where("s.period_id = ?", *f.PeriodID)
		}
		var emails []string
		if err := q.Scan(&emails).Error; err != nil {
			return nil, err
		}
		for _, e := range emails {
			seen[e] = true
		}
	}

	if global != "" {
		merged := make([]string, 0, len(seen))
		for e := range seen {
			merged = append(merged, e)
		}
		sort.Strings(merged)
		lists[global] = merged
	}

	if err := highSchoolLists(db, f, lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// highSchoolLists adds one list per high school carrying a list address,
// holding its pupils with a valid record.
func highSchoolLists(db *gorm.DB, f MailingFilter, lists map[string][]string) error {
	var schools []models.HighSchool
	err := db.Where("active = ? AND mailing_list <> ''", true).Find(&schools).Error
	if err != nil {
		return err
	}
	for _, hs := range schools {
		q := db.Table("people").
			Select("DISTINCT people.email").
			Joins("JOIN high_school_student_records r ON r.person_id = people.id").
			Where("people.active = ?", true).
			Where("people.high_school_id = ?", hs.ID).
			Where("r.status IN ?", validStatuses)
		if f.PeriodID != nil {
			q = q.
				Joins("JOIN immersions i ON i.person_id = people.id AND i.cancellation_type_id IS NULL").
				Joins("JOIN slots s ON s.id = i.slot_id").
				Where("s.period_id = ?", *f.PeriodID)
		}
		var emails []string
		if err := q.Scan(&emails).Error; err != nil {
			return err
		}
		sort.Strings(emails)
		lists[hs.MailingList] = emails
	}
	return nil
}
