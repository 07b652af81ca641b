// Package model defines the entities stored by entitydb and their DAOs.
package model

import (
	"context"
	"log"

	"github.com/arkilian/entitydb/internal/dao"
	"github.com/arkilian/entitydb/internal/schema"
)

// UserDaoType is the registry key of UserDao.
const UserDaoType = "UserDao"

// Login states stored in User.Status.
const (
	StatusLoggedOut int32 = 0
	StatusActive    int32 = 1
)

// User is an account in the primary database. At most one user is active.
type User struct {
	ID     *int32
	Name   *string
	Pwd    *string
	Status *int32
}

// UserMapping binds User to tb_user.
var UserMapping = schema.Mapping[User]{
	Table: "tb_user",
	Fields: []schema.FieldMap[User]{
		{Name: "id", Column: "u_id", Ref: func(u *User) any { return &u.ID }},
		{Name: "name", Ref: func(u *User) any { return &u.Name }},
		{Name: "pwd", Ref: func(u *User) any { return &u.Pwd }},
		{Name: "status", Ref: func(u *User) any { return &u.Status }},
	},
}

// UserDao stores users and tracks which one is logged in.
type UserDao struct {
	dao.BaseDao[User]
}

// NewUserDao is the registry constructor for UserDao.
func NewUserDao() *UserDao {
	return &UserDao{}
}

// Insert logs u in: every existing user is marked logged out, then u is
// stored as the active user.
func (d *UserDao) Insert(ctx context.Context, u *User) (int64, error) {
	active, err := d.Query(ctx, &User{Status: int32Ptr(StatusActive)})
	if err != nil {
		return -1, err
	}
	if _, err := d.Update(ctx, &User{Status: int32Ptr(StatusLoggedOut)}, nil); err != nil {
		return -1, err
	}
	for _, prev := range active {
		log.Printf("model: user %s logged out", strValue(prev.Name))
	}

	u.Status = int32Ptr(StatusActive)
	log.Printf("model: user %s logged in", strValue(u.Name))
	return d.BaseDao.Insert(ctx, u)
}

// CurrentActive returns the logged-in user, or nil if there is none.
func (d *UserDao) CurrentActive(ctx context.Context) (*User, error) {
	users, err := d.Query(ctx, &User{Status: int32Ptr(StatusActive)})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return users[0], nil
}

func int32Ptr(v int32) *int32 { return &v }

func strValue(s *string) string {
	if s == nil {
		return "<unnamed>"
	}
	return *s
}
