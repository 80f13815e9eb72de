package auth

import (
	"context"
	"errors"
	"strings"

	"procurement-backend/internal/config"
	"procurement-backend/internal/models"
	"procurement-backend/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type RegisterAdminRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Users reads and writes the users collection.
type Users struct {
	store store.Store
}

func NewUsers(s store.Store) *Users { return &Users{store: s} }

var errUserNotFound = errors.New("user not found")

func (u *Users) ByEmail(ctx context.Context, email string) (models.User, error) {
	docs, err := u.store.Query(ctx, models.CollectionUsers, store.Where("email", email))
	if err != nil {
		return models.User{}, err
	}
	if len(docs) == 0 {
		return models.User{}, errUserNotFound
	}
	return models.UserFromData(docs[0].ID(), docs[0].Data, docs[0].CreatedAt), nil
}

func (u *Users) ByID(ctx context.Context, id string) (models.User, error) {
	doc, err := u.store.Get(ctx, store.Path{Collection: models.CollectionUsers, ID: id})
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, errUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return models.UserFromData(doc.ID(), doc.Data, doc.CreatedAt), nil
}

func (u *Users) Create(ctx context.Context, user *models.User) error {
	user.ID = uuid.NewString()
	path := store.Path{Collection: models.CollectionUsers, ID: user.ID}
	return u.store.BatchCommit(ctx, []store.Mutation{store.Set(path, user.Data())})
}

func (u *Users) countRole(ctx context.Context, role models.UserRole) (int, error) {
	docs, err := u.store.Query(ctx, models.CollectionUsers, store.Where("role", string(role)))
	return len(docs), err
}

// RegisterAdminHandler creates the first admin. Once one exists it refuses.
func RegisterAdminHandler(users *Users) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterAdminRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de petición inválido")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))
		body.Name = strings.TrimSpace(body.Name)

		if body.Email == "" || body.Password == "" || body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Nombre, email y contraseña obligatorios")
		}

		count, err := users.countRole(c.UserContext(), models.RoleAdmin)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo consultar usuarios")
		}
		if count > 0 {
			return fiber.NewError(fiber.StatusForbidden, "Ya existe un administrador")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo cifrar la contraseña")
		}

		user := models.User{
			Name:         body.Name,
			Email:        body.Email,
			PasswordHash: string(hash),
			Role:         models.RoleAdmin,
		}
		if err := users.Create(c.UserContext(), &user); err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo crear el usuario")
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"id":    user.ID,
			"email": user.Email,
			"role":  user.Role,
		})
	}
}

func LoginHandler(cfg *config.Config, users *Users) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Cuerpo de petición inválido")
		}

		body.Email = strings.TrimSpace(strings.ToLower(body.Email))

		user, err := users.ByEmail(c.UserContext(), body.Email)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Email o contraseña incorrectos")
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "Email o contraseña incorrectos")
		}

		token, err := GenerateToken(cfg.JWTSecret, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "No se pudo generar el token")
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user": fiber.Map{
				"id":    user.ID,
				"name":  user.Name,
				"email": user.Email,
				"role":  user.Role,
			},
		})
	}
}

func MeHandler(users *Users) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, name := CurrentUser(c)
		user, err := users.ByID(c.UserContext(), id)
		if err != nil {
			// fall back to the token claims
			return c.JSON(fiber.Map{
				"user_id": id,
				"name":    name,
				"role":    c.Locals(CtxUserRoleKey),
			})
		}
		return c.JSON(fiber.Map{
			"user_id": user.ID,
			"name":    user.Name,
			"email":   user.Email,
			"role":    user.Role,
		})
	}
}
