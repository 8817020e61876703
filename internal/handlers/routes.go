package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/auth"
	"github.com/immersup/immersup-api/internal/models"
)

type Handlers struct {
	Auth     *auth.Service
	Accounts *AccountHandler
	Register *RegisterHandler
	Records  *RecordHandler
	Exports  *ExportHandler
	DB       *gorm.DB
}

func RegisterRoutes(r *chi.Mux, h *Handlers) {
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	config := huma.DefaultConfig("ImmerSup API", "1.0.0")
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"cookieAuth": {
			Type: "apiKey",
			In:   "cookie",
			Name: "auth_token",
		},
		"bearerAuth": {
			Type:   "http",
			Scheme: "bearer",
		},
	}
	api := humachi.New(r, config)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Public routes.
	huma.Post(api, "/api/login", h.Accounts.HandleLogin)
	huma.Post(api, "/api/signup", h.Accounts.HandleSignup)
	huma.Get(api, "/api/activate/{token}", h.Accounts.HandleActivate)
	r.Get("/api/federation/login", h.Accounts.HandleFederationLogin)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(h.Auth.Middleware)
		api := humachi.New(r, config)

		huma.Get(api, "/api/me", h.Accounts.HandleMe)

		huma.Post(api, "/api/register", h.Register.HandleRegister)
		huma.Post(api, "/api/cancel_registration", h.Register.HandleCancel)
		huma.Get(api, "/api/can_register_slot/{slot_id}", h.Register.HandleCanRegister)
		huma.Get(api, "/api/search_slots_list", h.Register.HandleSearchSlots)

		huma.Post(api, "/api/record", h.Records.HandleCreateRecord)
		r.Post("/api/record/documents", h.Records.HandleUploadDocuments)
		huma.Post(api, "/api/record/validate", h.Records.HandleValidateRecord)
		huma.Post(api, "/api/record/reject", h.Records.HandleRejectRecord)

		huma.Get(api, "/api/mailing_lists", h.Exports.HandleMailingLists)
		r.Get("/api/exports/slots.csv", h.Exports.HandleSlotsCSV)
		r.Get("/api/exports/registrations.csv", h.Exports.HandleRegistrationsCSV)

		registerSpeakers(api, h.DB)
		registerCatalog(api, h.DB)
	})
}

// registerCatalog exposes CRUD for the offer and reference resources.
// Write verbs require a manager role; resources with an owner chain
// additionally scope writes to managers of that chain.
func registerCatalog(api huma.API, db *gorm.DB) {
	resourceOwned(api, db, "establishment", "/api/establishments",
		func(_ context.Context, _ *gorm.DB, o *models.Establishment) (scope, error) {
			return scope{establishmentID: &o.ID}, nil
		})
	resourceOwned(api, db, "structure", "/api/structures",
		func(_ context.Context, _ *gorm.DB, o *models.Structure) (scope, error) {
			return scope{establishmentID: &o.EstablishmentID, structureID: &o.ID}, nil
		})
	resourceOwned(api, db, "campus", "/api/campuses",
		func(_ context.Context, _ *gorm.DB, o *models.Campus) (scope, error) {
			return scope{establishmentID: &o.EstablishmentID}, nil
		})
	resourceOwned(api, db, "building", "/api/buildings",
		func(ctx context.Context, db *gorm.DB, o *models.Building) (scope, error) {
			var c models.Campus
			if err := db.WithContext(ctx).First(&c, o.CampusID).Error; err != nil {
				return scope{}, err
			}
			return scope{establishmentID: &c.EstablishmentID}, nil
		})
	resourceOwned(api, db, "high-school", "/api/high_schools",
		func(_ context.Context, _ *gorm.DB, o *models.HighSchool) (scope, error) {
			return scope{highSchoolID: &o.ID}, nil
		})
	resource[models.HighSchoolLevel](api, db, "high-school-level", "/api/high_school_levels")
	resource[models.StudentLevel](api, db, "student-level", "/api/student_levels")
	resource[models.PostBachelorLevel](api, db, "post-bachelor-level", "/api/post_bachelor_levels")
	resource[models.BachelorType](api, db, "bachelor-type", "/api/bachelor_types")
	resource[models.BachelorMention](api, db, "bachelor-mention", "/api/bachelor_mentions")
	resource[models.TrainingDomain](api, db, "training-domain", "/api/training_domains")
	resource[models.TrainingSubdomain](api, db, "training-subdomain", "/api/training_subdomains")
	resourceOwned(api, db, "training", "/api/trainings",
		func(ctx context.Context, db *gorm.DB, o *models.Training) (scope, error) {
			return trainingScope(ctx, db, o)
		})
	resource[models.CourseType](api, db, "course-type", "/api/course_types")
	resourceOwned(api, db, "course", "/api/courses",
		func(ctx context.Context, db *gorm.DB, o *models.Course) (scope, error) {
			return courseScope(ctx, db, o)
		})
	resource[models.EventType](api, db, "event-type", "/api/event_types")
	resourceOwned(api, db, "event", "/api/events",
		func(ctx context.Context, db *gorm.DB, o *models.OffOfferEvent) (scope, error) {
			return eventScope(ctx, db, o)
		})
	resourceOwned(api, db, "visit", "/api/visits",
		func(_ context.Context, _ *gorm.DB, o *models.Visit) (scope, error) {
			return visitScope(o), nil
		})
	resourceOwned(api, db, "slot", "/api/slots",
		func(ctx context.Context, db *gorm.DB, o *models.Slot) (scope, error) {
			return slotScope(ctx, db, o)
		})
	resource[models.UniversityYear](api, db, "university-year", "/api/university_years")
	resource[models.Period](api, db, "period", "/api/periods")
	resource[models.Vacation](api, db, "vacation", "/api/vacations")
	resource[models.Holiday](api, db, "holiday", "/api/holidays")
	resource[models.UserCourseAlert](api, db, "course-alert", "/api/course_alerts")
	resource[models.MailTemplate](api, db, "mail-template", "/api/mail_templates")
	resource[models.CancellationType](api, db, "cancellation-type", "/api/cancellation_types")
	resource[models.VisitorType](api, db, "visitor-type", "/api/visitor_types")
}

type speakersResponse struct {
	Body struct {
		Speakers []models.Person `json:"speakers"`
	}
}

func registerSpeakers(api huma.API, db *gorm.DB) {
	huma.Get(api, "/api/speakers", func(ctx context.Context, _ *struct{}) (*speakersResponse, error) {
		res := &speakersResponse{}
		err := db.WithContext(ctx).
			Joins("JOIN person_roles ON person_roles.person_id = people.id").
			Where("person_roles.role = ?", models.RoleSpeaker).
			Find(&res.Body.Speakers).Error
		if err != nil {
			return nil, mapErr(err)
		}
		return res, nil
	})
}
