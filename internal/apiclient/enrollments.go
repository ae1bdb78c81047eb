package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/magabrotheeeer/course-subscriptions/internal/models"
)

// AlreadyEnrolledMessage: ответ платформы на повторное зачисление.
const AlreadyEnrolledMessage = "Already enrolled"

// EnrollResponse: ответ на зачисление: документ зачисления или сообщение
// о том, что пользователь уже зачислен.
type EnrollResponse struct {
	EnrolledAt *time.Time `json:"enrolledAt,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// AlreadyEnrolled сообщает, что зачисление уже существовало.
func (r EnrollResponse) AlreadyEnrolled() bool {
	return r.Message == AlreadyEnrolledMessage
}

// enrollmentWire: элемент GET /enrollments/me. Курс приходит либо
// идентификатором, либо вложенным документом.
type enrollmentWire struct {
	CourseID   string    `json:"courseId"`
	EnrolledAt time.Time `json:"enrolledAt"`
	Course     *struct {
		ID string `json:"_id"`
	} `json:"course"`
}

// MyEnrollments возвращает авторитетный список зачислений в порядке сервера.
func (c *Client) MyEnrollments(ctx context.Context) ([]models.EnrollmentRecord, error) {
	const op = "apiclient.MyEnrollments"
	body, err := c.get(ctx, op, "/enrollments/me")
	if err != nil {
		return nil, err
	}
	var items []enrollmentWire
	if err := decodeList(body, "enrollments", &items); err != nil {
		return nil, &FetchError{Op: op, Err: err}
	}
	records := make([]models.EnrollmentRecord, 0, len(items))
	for _, it := range items {
		id := it.CourseID
		if id == "" && it.Course != nil {
			id = it.Course.ID
		}
		if id == "" {
			return nil, &FetchError{Op: op, Err: fmt.Errorf("enrollment without course id")}
		}
		records = append(records, models.EnrollmentRecord{CourseID: id, EnrolledAt: it.EnrolledAt})
	}
	return records, nil
}

// Enroll зачисляет пользователя на курс.
func (c *Client) Enroll(ctx context.Context, courseID string) (*EnrollResponse, error) {
	const op = "apiclient.Enroll"
	body, err := c.mutate(ctx, op, http.MethodPost, "/enrollments/"+url.PathEscape(courseID)+"/enroll", nil, nil)
	if err != nil {
		return nil, err
	}
	var resp EnrollResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return &resp, nil
}

// Unenroll отчисляет пользователя с курса.
func (c *Client) Unenroll(ctx context.Context, courseID string) error {
	_, err := c.mutate(ctx, "apiclient.Unenroll", http.MethodDelete, "/enrollments/"+url.PathEscape(courseID)+"/enroll", nil, nil)
	return err
}

// EnrollmentSummary возвращает агрегат зачислений по курсам.
func (c *Client) EnrollmentSummary(ctx context.Context) ([]models.EnrollmentSummary, error) {
	const op = "apiclient.EnrollmentSummary"
	body, err := c.get(ctx, op, "/enrollments/summary")
	if err != nil {
		return nil, err
	}
	var summary []models.EnrollmentSummary
	if err := decodeList(body, "summary", &summary); err != nil {
		return nil, &FetchError{Op: op, Err: err}
	}
	return summary, nil
}
