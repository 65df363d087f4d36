package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/PabloIxcamparij/SEGIREC-Server/internal/auth"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/db"
	"github.com/PabloIxcamparij/SEGIREC-Server/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrNameExists   = errors.New("user name already in use")
	ErrNoAdmin      = errors.New("no active administrator found")
)

// CreateUserInput is what an administrator supplies for a new user.
type CreateUserInput struct {
	Name     string   `json:"nombre" binding:"required"`
	Email    string   `json:"correo" binding:"required,email"`
	Password string   `json:"clave" binding:"required"`
	Roles    []string `json:"roles" binding:"required,min=1,dive,oneof=Administrador Morosidad Propiedades Masivo"`
}

// UpdateUserInput changes only the fields that are set.
type UpdateUserInput struct {
	Name     *string  `json:"nombre,omitempty"`
	Email    *string  `json:"correo,omitempty" binding:"omitempty,email"`
	Password *string  `json:"clave,omitempty"`
	Roles    []string `json:"roles,omitempty" binding:"omitempty,min=1,dive,oneof=Administrador Morosidad Propiedades Masivo"`
	Active   *bool    `json:"activo,omitempty"`
}

// IUserService manages back-office users.
type IUserService interface {
	FindByID(ctx context.Context, userID string) (*models.User, error)
	FindByName(ctx context.Context, name string) (*models.User, error)
	FindFirstActiveAdmin(ctx context.Context) (*models.User, error)
	List(ctx context.Context) ([]models.User, error)
	Create(ctx context.Context, input CreateUserInput) (*models.User, error)
	Update(ctx context.Context, userID string, input UpdateUserInput) (*models.User, error)
	Delete(ctx context.Context, userID string) error
	SetSessionID(ctx context.Context, userID, sessionID string) error
}

const usersCollection = "users"

type userService struct {
	db *mongo.Database
}

func NewUserService(db *mongo.Database) IUserService {
	return &userService{db: db}
}

func (s *userService) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*models.User, error) {
	var user models.User
	err := s.db.Collection(usersCollection).FindOne(ctx, filter, opts...).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByID finds a non-deleted user by id.
func (s *userService) FindByID(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.findOne(ctx, bson.M{"_id": userID, "deleted": false})
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("error finding user by ID %s: %w", userID, err)
	}
	return user, err
}

// FindByName finds a non-deleted user by login name.
func (s *userService) FindByName(ctx context.Context, name string) (*models.User, error) {
	user, err := s.findOne(ctx, bson.M{"name": strings.TrimSpace(name), "deleted": false})
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("error finding user by name: %w", err)
	}
	return user, err
}

// FindFirstActiveAdmin returns the oldest active administrator.
func (s *userService) FindFirstActiveAdmin(ctx context.Context) (*models.User, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: 1}})
	user, err := s.findOne(ctx, bson.M{"roles": models.RoleAdmin, "active": true, "deleted": false}, opts)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrNoAdmin
	}
	if err != nil {
		return nil, fmt.Errorf("error finding administrator: %w", err)
	}
	return user, nil
}

// List returns every non-deleted user ordered by name.
func (s *userService) List(ctx context.Context) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := s.db.Collection(usersCollection).Find(ctx, bson.M{"deleted": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

// Create inserts a new active user. The name must be unique among non-deleted users.
func (s *userService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	name := strings.TrimSpace(input.Name)
	collection := s.db.Collection(usersCollection)

	count, err := collection.CountDocuments(ctx, bson.M{"name": name, "deleted": false})
	if err != nil {
		return nil, fmt.Errorf("error checking name uniqueness: %w", err)
	}
	if count > 0 {
		return nil, ErrNameExists
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &models.User{
		Base:         models.NewBase(),
		Name:         name,
		Email:        strings.TrimSpace(input.Email),
		PasswordHash: hash,
		Roles:        input.Roles,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	// The partial unique index on active names catches a racing create.
	if _, err := collection.InsertOne(ctx, user); err != nil {
		if db.IsMongoDuplicateKeyError(err) {
			return nil, ErrNameExists
		}
		return nil, fmt.Errorf("error inserting user %s: %w", name, err)
	}

	log.WithField("user", user.ID).Info("User created")
	return user, nil
}

// Update applies the set fields of input. Changing the password or
// deactivating the user ends the current session.
func (s *userService) Update(ctx context.Context, userID string, input UpdateUserInput) (*models.User, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	unset := bson.M{}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		count, err := s.db.Collection(usersCollection).CountDocuments(ctx,
			bson.M{"name": name, "deleted": false, "_id": bson.M{"$ne": userID}})
		if err != nil {
			return nil, fmt.Errorf("error checking name uniqueness: %w", err)
		}
		if count > 0 {
			return nil, ErrNameExists
		}
		set["name"] = name
	}
	if input.Email != nil {
		set["email"] = strings.TrimSpace(*input.Email)
	}
	if input.Roles != nil {
		set["roles"] = input.Roles
	}
	if input.Active != nil {
		set["active"] = *input.Active
		if !*input.Active {
			unset["session_id"] = ""
		}
	}
	if input.Password != nil {
		hash, err := auth.HashPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		set["password"] = hash
		unset["session_id"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user models.User
	err := s.db.Collection(usersCollection).
		FindOneAndUpdate(ctx, bson.M{"_id": userID, "deleted": false}, update, opts).
		Decode(&user)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			return nil, ErrUserNotFound
		case db.IsMongoDuplicateKeyError(err):
			return nil, ErrNameExists
		}
		return nil, fmt.Errorf("error updating user %s: %w", userID, err)
	}
	return &user, nil
}

// Delete soft-deletes the user and ends its session.
func (s *userService) Delete(ctx context.Context, userID string) error {
	update := bson.M{
		"$set":   bson.M{"deleted": true, "active": false, "updated_at": time.Now().UTC()},
		"$unset": bson.M{"session_id": ""},
	}
	result, err := s.db.Collection(usersCollection).UpdateOne(ctx, bson.M{"_id": userID, "deleted": false}, update)
	if err != nil {
		return fmt.Errorf("error deleting user %s: %w", userID, err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	log.WithField("user", userID).Info("User deleted")
	return nil
}

// SetSessionID stores the current session id. An empty id ends the session.
func (s *userService) SetSessionID(ctx context.Context, userID, sessionID string) error {
	update := bson.M{"$set": bson.M{"session_id": sessionID, "updated_at": time.Now().UTC()}}
	if sessionID == "" {
		update = bson.M{"$unset": bson.M{"session_id": ""}, "$set": bson.M{"updated_at": time.Now().UTC()}}
	}
	result, err := s.db.Collection(usersCollection).UpdateByID(ctx, userID, update)
	if err != nil {
		return fmt.Errorf("error updating session for user %s: %w", userID, err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}
