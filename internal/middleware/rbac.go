package middleware

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/online-course-api/internal/models"
	appErrors "github.com/noah-isme/online-course-api/pkg/errors"
	"github.com/noah-isme/online-course-api/pkg/response"
)

// SelfAccess lets a route through when the :id param is the caller.
const SelfAccess = "SELF"

// RBAC enforces role-based access control for routes.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowSelf := false
	allowedRoles := make(map[models.UserRole]struct{}, len(allowed))
	for _, a := range allowed {
		if a == SelfAccess {
			allowSelf = true
			continue
		}
		allowedRoles[models.UserRole(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[claims.Role]; ok {
			c.Next()
			return
		}

		if allowSelf {
			if targetID := c.Param("id"); targetID != "" && targetID == claims.UserID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}

// TeacherLookup loads the current state of a user account.
type TeacherLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// RequireTeacher admits admins and users currently flagged as teachers. The
// flag is read from users so a change takes effect before the token expires;
// with a nil lookup the token claim is used.
func RequireTeacher(users TeacherLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentUser(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if claims.IsAdmin() {
			c.Next()
			return
		}

		isTeacher := claims.IsTeacher
		if users != nil {
			user, err := users.FindByID(c.Request.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					response.Error(c, appErrors.ErrUnauthorized)
				} else {
					response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user"))
				}
				c.Abort()
				return
			}
			isTeacher = user.IsTeacher
		}
		if !isTeacher {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "teacher access required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
