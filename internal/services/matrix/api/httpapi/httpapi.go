// Package httpapi exposes the matrix and directory services as a JSON API.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	apperrors "github.com/openraci/raciboard/internal/platform/errors"
	"github.com/openraci/raciboard/internal/platform/requestctx"
	dirstorage "github.com/openraci/raciboard/internal/services/directory/storage"
	"github.com/openraci/raciboard/internal/services/matrix/domain"
	"github.com/openraci/raciboard/internal/services/matrix/service"
)

// actingUserHeader names the header carrying the acting-user identity.
// Authentication happens upstream; the gateway forwards the verified id.
const actingUserHeader = "X-Acting-User"

// Directory is the admin write surface for project and member records.
type Directory interface {
	PutProject(ctx context.Context, record dirstorage.ProjectRecord) error
	PutTeamMember(ctx context.Context, record dirstorage.TeamMemberRecord) error
	PutMembership(ctx context.Context, record dirstorage.MembershipRecord) error
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc *service.Service, dir Directory, logger *log.Logger) {
	e.Use(actingUser())

	e.GET("/healthz", healthz())

	e.POST("/api/projects/:projectID/matrices", createMatrix(svc, logger))
	e.GET("/api/projects/:projectID/matrices", listMatrices(svc, logger))
	e.GET("/api/matrices/:matrixID", getMatrix(svc, logger))
	e.DELETE("/api/matrices/:matrixID", deleteMatrix(svc, logger))

	e.POST("/api/matrices/:matrixID/tasks", addTask(svc, logger))
	e.PATCH("/api/matrices/:matrixID/tasks/:rowOrder", updateTask(svc, logger))
	e.DELETE("/api/matrices/:matrixID/tasks/:rowOrder", deleteTask(svc, logger))

	e.POST("/api/matrices/:matrixID/columns", addColumn(svc, logger))
	e.DELETE("/api/matrices/:matrixID/columns/:participantKey", removeColumn(svc, logger))

	e.PUT("/api/matrices/:matrixID/tasks/:rowOrder/assignments", setAssignment(svc, logger))
	e.PUT("/api/matrices/:matrixID/approver", setApprover(svc, logger))

	e.PUT("/api/projects/:projectID", putProject(dir, logger))
	e.PUT("/api/members/:memberID", putMember(dir, logger))
	e.PUT("/api/projects/:projectID/members/:memberID", putMembership(dir, logger))
}

func actingUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := c.Request().Header.Get(actingUserHeader)
			if userID != "" {
				ctx := requestctx.WithUserID(c.Request().Context(), userID)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(c echo.Context, logger *log.Logger, err error) error {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	if status >= http.StatusInternalServerError && logger != nil {
		logger.WithFields(log.Fields{
			"method": c.Request().Method,
			"path":   c.Path(),
		}).Error(err)
	}
	message := "internal error"
	if status < http.StatusInternalServerError {
		message = err.Error()
	}
	return c.JSON(status, errorResponse{Code: string(code), Message: message})
}

// participantRefDTO is the wire form of a participant reference.
type participantRefDTO struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

const (
	refTypeMember       = "member"
	refTypeProductOwner = "productOwner"
	refTypePMO          = "pmo"
	refTypeScrumMaster  = "scrumMaster"
)

func (dto participantRefDTO) toRef() (domain.ParticipantRef, error) {
	switch dto.Type {
	case refTypeMember:
		return domain.TeamMemberRef(dto.ID), nil
	case refTypeProductOwner:
		return domain.SpecialRoleRef(domain.ParticipantProductOwner, dto.ID), nil
	case refTypePMO:
		return domain.SpecialRoleRef(domain.ParticipantPMO, dto.ID), nil
	case refTypeScrumMaster:
		return domain.SpecialRoleRef(domain.ParticipantScrumMaster, dto.ID), nil
	default:
		return domain.ParticipantRef{}, apperrors.WithMetadata(
			apperrors.CodeParticipantRefInvalid,
			"participant type must be member, productOwner, pmo, or scrumMaster",
			map[string]string{"type": dto.Type},
		)
	}
}

func rowOrderParam(c echo.Context) (int, error) {
	rowOrder, err := strconv.Atoi(c.Param("rowOrder"))
	if err != nil {
		return 0, apperrors.New(apperrors.CodeParamInvalid, "row order must be an integer")
	}
	return rowOrder, nil
}

type createMatrixRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func createMatrix(svc *service.Service, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createMatrixRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Code: string(apperrors.CodeUnknown), Message: "invalid body"})
		}
		matrix, err := svc.CreateMatrix(c.Request().Context(), domain.CreateMatrixInput{
			ProjectID:   c.Param("projectID"),
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusCreated, matrixSummary{
			ID:          matrix.ID,
			ProjectID:   matrix.ProjectID,
			Name:        matrix.Name,
			Description: matrix.Description,
			CreatedBy:   matrix.CreatedBy,
			UpdatedBy:   matrix.UpdatedBy,
			CreatedAt:   matrix.CreatedAt,
			UpdatedAt:   matrix.UpdatedAt,
		})
	}
}

type matrixSummary struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"projectId"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	ApproverUserID string    `json:"approverUserId,omitempty"`
	CreatedBy      string    `json:"createdBy"`
	UpdatedBy      string    `json:"updatedBy"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type listMatricesResponse struct {
	Matrices []matrixSummary `json:"matrices"`
}

func listMatrices(svc *service.Service, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		matrices, err := svc.ListMatrices(c.Request().Context(), c.Param("projectID"))
		if err != nil {
			return writeError(c, logger, err)
		}
		resp := listMatricesResponse{Matrices: make([]matrixSummary, 0, len(matrices))}
		for _, matrix := range matrices {
			resp.Matrices = append(resp.Matrices, matrixSummary{
				ID:             matrix.ID,
				ProjectID:      matrix.ProjectID,
				Name:           matrix.Name,
				Description:    matrix.Description,
				ApproverUserID: matrix.ApproverUserID,
				CreatedBy:      matrix.CreatedBy,
				UpdatedBy:      matrix.UpdatedBy,
				CreatedAt:      matrix.CreatedAt,
				UpdatedAt:      matrix.UpdatedAt,
			})
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func getMatrix(svc *service.Service, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		snapshot, err := svc.GetView(c.Request().Context(), c.Param("matrixID"))
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, snapshot)
	}
}

func deleteMatrix(svc *service.Service, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.DeleteMatrix(c.Request().Context(), c.Param("matrixID")); err != nil {
			return writeError(c, logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type taskRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	RowOrder    *int   `json:"rowOrder,omitempty"`
}

func addTask(svc *service.Service, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req taskRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Code: string(apperrors.CodeUnknown), Message: "invalid body"})
		}
		snapshot, err := svc.AddTask(c.Request().Context(), c.Param("matrixID"), service.TaskInput{
			Name:        req.Name,
			Description: req.Description,
			RowOrder:    req.RowOrder,
		})
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusCreated, snapshot)
	}
}

type updateTaskRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func updateTask(svc *service.Service, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		rowOrder, err := rowOrderParam(c)
		if err != nil {
			return writeError(c, logger, err)
		}
		var req updateTaskRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Code: string(apperrors.CodeUnknown), Message: "invalid body"})
		}
		snapshot, err := svc.UpdateTask(c.Request().Context(), c.Param("matrixID"), rowOrder, service.UpdateTaskInput{
			Name:        req.Name,
			Description: req.Description,
		})
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, snapshot)
	}
}

func deleteTask(svc *service.Service, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		rowOrder, err := rowOrderParam(c)
		if err != nil {
			return writeError(c, logger, err)
		}
		snapshot, err := svc.DeleteTask(c.Request().Context(), c.Param("matrixID"), rowOrder)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, snapshot)
	}
}

type columnRequest struct {
	Participant participantRefDTO `json:"participant"`
}

func addColumn(svc *service.Service, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req columnRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Code: string(apperrors.CodeUnknown), Message: "invalid body"})
		}
		ref, err := req.Participant.toRef()
		if err != nil {
			return writeError(c, logger, err)
		}
		snapshot, err := svc.AddParticipantColumn(c.Request().Context(), c.Param("matrixID"), ref)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusCreated, snapshot)
	}
}

func removeColumn(svc *service.Service, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ref, err := domain.ParseParticipantKey(c.Param("participantKey"))
		if err != nil {
			return writeError(c, logger, err)
		}
		snapshot, err := svc.RemoveParticipantColumn(c.Request().Context(), c.Param("matrixID"), ref)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, snapshot)
	}
}

type assignmentRequest struct {
	Participant participantRefDTO `json:"participant"`
	Role        string            `json:"role"`
}

func setAssignment(svc *service.Service, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		rowOrder, err := rowOrderParam(c)
		if err != nil {
			return writeError(c, logger, err)
		}
		var req assignmentRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Code: string(apperrors.CodeUnknown), Message: "invalid body"})
		}
		ref, err := req.Participant.toRef()
		if err != nil {
			return writeError(c, logger, err)
		}
		role, err := domain.RoleFromLetter(req.Role)
		if err != nil {
			return writeError(c, logger, err)
		}
		snapshot, err := svc.SetAssignment(c.Request().Context(), c.Param("matrixID"), rowOrder, ref, role)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, snapshot)
	}
}

type approverRequest struct {
	UserID string `json:"userId"`
}

func setApprover(svc *service.Service, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req approverRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Code: string(apperrors.CodeUnknown), Message: "invalid body"})
		}
		snapshot, err := svc.SetApprover(c.Request().Context(), c.Param("matrixID"), req.UserID)
		if err != nil {
			return writeError(c, logger, err)
		}
		return c.JSON(http.StatusOK, snapshot)
	}
}

type projectRequest struct {
	Name           string `json:"name"`
	ProductOwnerID string `json:"productOwnerId"`
	PMOUserID      string `json:"pmoUserId"`
}

func putProject(dir Directory, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req projectRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Code: string(apperrors.CodeUnknown), Message: "invalid body"})
		}
		now := time.Now().UTC()
		record := dirstorage.ProjectRecord{
			ID:             c.Param("projectID"),
			Name:           req.Name,
			ProductOwnerID: req.ProductOwnerID,
			PMOUserID:      req.PMOUserID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := dir.PutProject(c.Request().Context(), record); err != nil {
			return writeError(c, logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type memberRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

func putMember(dir Directory, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req memberRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Code: string(apperrors.CodeUnknown), Message: "invalid body"})
		}
		now := time.Now().UTC()
		record := dirstorage.TeamMemberRecord{
			ID:          c.Param("memberID"),
			DisplayName: req.DisplayName,
			Email:       req.Email,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := dir.PutTeamMember(c.Request().Context(), record); err != nil {
			return writeError(c, logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}

type membershipRequest struct {
	RoleLabel string `json:"roleLabel"`
	Active    *bool  `json:"active,omitempty"`
}

func putMembership(dir Directory, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req membershipRequest
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorResponse{Code: string(apperrors.CodeUnknown), Message: "invalid body"})
		}
		active := true
		if req.Active != nil {
			active = *req.Active
		}
		now := time.Now().UTC()
		record := dirstorage.MembershipRecord{
			ProjectID: c.Param("projectID"),
			MemberID:  c.Param("memberID"),
			RoleLabel: req.RoleLabel,
			Active:    active,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := dir.PutMembership(c.Request().Context(), record); err != nil {
			return writeError(c, logger, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
