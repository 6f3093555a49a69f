package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("class not found")
	ErrDuplicate = errors.New("class already exists")
	ErrForbidden = errors.New("class belongs to another teacher")
	ErrInvalid   = errors.New("invalid class")
)

// Class is a teacher-defined course offering.
type Class struct {
	ID         string    `json:"id" bson:"_id"`
	Code       string    `json:"code" bson:"code"`
	Name       string    `json:"name" bson:"name"`
	Subject    string    `json:"subject" bson:"subject"`
	MonthlyFee float64   `json:"monthlyFee" bson:"monthlyFee"`
	TeacherID  string    `json:"teacherId" bson:"teacherId"`
	QRImageURL string    `json:"qrImageUrl" bson:"qrImageUrl"`
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt"`
}

// Listing is a class as shown in the catalog, with its teacher's name resolved.
type Listing struct {
	Class
	TeacherName string `json:"teacherName"`
}

// Repository persists classes.
type Repository interface {
	InsertClass(ctx context.Context, c Class) error
	GetClass(ctx context.Context, id string) (Class, error)
	GetClassByCode(ctx context.Context, code string) (Class, error)
	ListClasses(ctx context.Context) ([]Class, error)
	ListClassesByTeacher(ctx context.Context, teacherID string) ([]Class, error)
	UpdateClassFee(ctx context.Context, id string, fee float64) error
	UpdateClassQR(ctx context.Context, id, url string) error
}

// Directory resolves user ids to display names.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}
