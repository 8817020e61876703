package database

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/config"
	"github.com/immersup/immersup-api/internal/models"
)

// Connect opens postgres when DATABASE_URL is set and falls back to a
// local sqlite file for development.
func Connect(cfg *config.Config) *gorm.DB {
	var dialector gorm.Dialector
	if cfg.DatabaseURL != "" {
		dialector = postgres.Open(cfg.DatabaseURL)
	} else {
		dialector = sqlite.Open(cfg.DatabasePath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		log.Fatalf("Failed to auto migrate: %v", err)
	}

	return db
}

// Models lists every persisted type, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.Person{}, &models.PersonRole{}, &models.APIToken{},
		&models.Establishment{}, &models.Structure{}, &models.Campus{}, &models.Building{},
		&models.HighSchool{}, &models.HighSchoolLevel{}, &models.StudentLevel{},
		&models.PostBachelorLevel{}, &models.BachelorType{}, &models.BachelorMention{},
		&models.GeneralBachelorTeaching{},
		&models.TrainingDomain{}, &models.TrainingSubdomain{}, &models.Training{},
		&models.CourseType{}, &models.Course{},
		&models.EventType{}, &models.OffOfferEvent{}, &models.Visit{},
		&models.Slot{},
		&models.UniversityYear{}, &models.Period{}, &models.Vacation{}, &models.Holiday{},
		&models.VisitorType{}, &models.HighSchoolStudentRecord{}, &models.StudentRecord{},
		&models.VisitorRecord{}, &models.PeriodQuota{},
		&models.AttestationDocument{}, &models.AttestationProfile{}, &models.RecordDocument{},
		&models.CancellationType{}, &models.Immersion{}, &models.GroupImmersion{},
		&models.UserCourseAlert{},
		&models.GeneralSetting{}, &models.ScheduledTask{}, &models.TaskRunLog{},
		&models.MailTemplate{}, &models.OutboxMessage{},
	}
}
