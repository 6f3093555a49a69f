package catalog

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tuition/internal/logging"
	"tuition/internal/media"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
	codeAttempts = 5
)

// Image is an uploaded file as received from the client.
type Image struct {
	Data     []byte
	Filename string
}

// NewClass holds the teacher's input for Create.
type NewClass struct {
	Name       string
	Subject    string
	MonthlyFee float64
	QR         *Image
}

// Service reads and maintains the class catalog.
type Service struct {
	repo     Repository
	users    Directory
	uploader *media.Uploader
	log      *zap.Logger
	now      func() time.Time
}

// NewService creates a catalog service. uploader may be nil when QR images are not accepted.
func NewService(repo Repository, users Directory, uploader *media.Uploader, log *zap.Logger) *Service {
	return &Service{repo: repo, users: users, uploader: uploader, log: logging.OrNop(log), now: time.Now}
}

// Create validates input, uploads the optional QR image and stores the class
// under a freshly generated join code.
func (s *Service) Create(ctx context.Context, teacherID string, in NewClass) (Class, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Subject = strings.TrimSpace(in.Subject)
	if teacherID == "" || in.Name == "" || in.Subject == "" {
		return Class{}, fmt.Errorf("%w: please fill all required fields", ErrInvalid)
	}
	if in.MonthlyFee <= 0 {
		return Class{}, fmt.Errorf("%w: monthly fee must be a positive number", ErrInvalid)
	}

	var qrURL string
	if in.QR != nil && len(in.QR.Data) > 0 {
		url, err := s.uploadQR(ctx, *in.QR)
		if err != nil {
			return Class{}, err
		}
		qrURL = url
	}

	c := Class{
		ID:         uuid.NewString(),
		Name:       in.Name,
		Subject:    in.Subject,
		MonthlyFee: in.MonthlyFee,
		TeacherID:  teacherID,
		QRImageURL: qrURL,
		CreatedAt:  s.now().UTC(),
	}
	for i := 0; i < codeAttempts; i++ {
		code, err := GenerateCode()
		if err != nil {
			return Class{}, err
		}
		c.Code = code
		err = s.repo.InsertClass(ctx, c)
		if err == nil {
			s.log.Info("class created", zap.String("class_id", c.ID), zap.String("code", c.Code))
			return c, nil
		}
		if !errors.Is(err, ErrDuplicate) {
			return Class{}, err
		}
	}
	return Class{}, fmt.Errorf("could not allocate a unique class code after %d attempts", codeAttempts)
}

// List returns every class with the owning teacher's name.
func (s *Service) List(ctx context.Context) ([]Listing, error) {
	classes, err := s.repo.ListClasses(ctx)
	if err != nil {
		return nil, err
	}
	return s.resolve(ctx, classes), nil
}

func (s *Service) ListByTeacher(ctx context.Context, teacherID string) ([]Class, error) {
	return s.repo.ListClassesByTeacher(ctx, teacherID)
}

func (s *Service) Get(ctx context.Context, id string) (Listing, error) {
	c, err := s.repo.GetClass(ctx, id)
	if err != nil {
		return Listing{}, err
	}
	return s.resolve(ctx, []Class{c})[0], nil
}

func (s *Service) GetByCode(ctx context.Context, code string) (Listing, error) {
	c, err := s.repo.GetClassByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return Listing{}, err
	}
	return s.resolve(ctx, []Class{c})[0], nil
}

// UpdateFee changes the monthly fee of a class owned by teacherID.
func (s *Service) UpdateFee(ctx context.Context, teacherID, classID string, fee float64) (Class, error) {
	if fee <= 0 {
		return Class{}, fmt.Errorf("%w: monthly fee must be a positive number", ErrInvalid)
	}
	c, err := s.owned(ctx, teacherID, classID)
	if err != nil {
		return Class{}, err
	}
	if err := s.repo.UpdateClassFee(ctx, classID, fee); err != nil {
		return Class{}, err
	}
	c.MonthlyFee = fee
	return c, nil
}

// UpdateQR replaces the payment QR image of a class owned by teacherID.
func (s *Service) UpdateQR(ctx context.Context, teacherID, classID string, img Image) (Class, error) {
	if len(img.Data) == 0 {
		return Class{}, fmt.Errorf("%w: qr image is required", ErrInvalid)
	}
	c, err := s.owned(ctx, teacherID, classID)
	if err != nil {
		return Class{}, err
	}
	url, err := s.uploadQR(ctx, img)
	if err != nil {
		return Class{}, err
	}
	if err := s.repo.UpdateClassQR(ctx, classID, url); err != nil {
		return Class{}, err
	}
	c.QRImageURL = url
	return c, nil
}

func (s *Service) owned(ctx context.Context, teacherID, classID string) (Class, error) {
	c, err := s.repo.GetClass(ctx, classID)
	if err != nil {
		return Class{}, err
	}
	if c.TeacherID != teacherID {
		return Class{}, ErrForbidden
	}
	return c, nil
}

func (s *Service) uploadQR(ctx context.Context, img Image) (string, error) {
	if s.uploader == nil {
		return "", media.ErrNoHost
	}
	data, name, err := s.uploader.Prepare(img.Data, img.Filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return s.uploader.Upload(ctx, data, name)
}

// resolve attaches teacher names, looking each teacher up once.
func (s *Service) resolve(ctx context.Context, classes []Class) []Listing {
	names := make(map[string]string)
	out := make([]Listing, 0, len(classes))
	for _, c := range classes {
		name, ok := names[c.TeacherID]
		if !ok && s.users != nil {
			n, err := s.users.DisplayName(ctx, c.TeacherID)
			if err != nil {
				s.log.Debug("teacher name lookup failed", zap.String("teacher_id", c.TeacherID), zap.Error(err))
			}
			name = n
			names[c.TeacherID] = name
		}
		out = append(out, Listing{Class: c, TeacherName: name})
	}
	return out
}

// GenerateCode returns a random six character join code.
func GenerateCode() (string, error) {
	var b strings.Builder
	size := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generate class code: %w", err)
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
