package model

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/arkilian/entitydb/internal/dao"
	"github.com/arkilian/entitydb/internal/schema"
)

// PhotoDaoType is the shard registry key of PhotoDao.
const PhotoDaoType = "PhotoDao"

// DefaultShardPattern names a user's private database file.
const DefaultShardPattern = "u_%d_private.db"

// Photo is stored in the private shard of the user who owns it.
type Photo struct {
	Time *string
	Path *string
}

// PhotoMapping binds Photo to tb_photo.
var PhotoMapping = schema.Mapping[Photo]{
	Table: "tb_photo",
	Fields: []schema.FieldMap[Photo]{
		{Name: "time", Ref: func(p *Photo) any { return &p.Time }},
		{Name: "path", Ref: func(p *Photo) any { return &p.Path }},
	},
}

// PhotoDao is a plain CRUD DAO for photos.
type PhotoDao struct {
	dao.BaseDao[Photo]
}

// NewPhotoDao is the registry constructor for PhotoDao.
func NewPhotoDao() *PhotoDao {
	return &PhotoDao{}
}

// ShardPath returns the private database path of user id.
func ShardPath(dir, pattern string, id int32) string {
	if pattern == "" {
		pattern = DefaultShardPattern
	}
	return filepath.Join(dir, fmt.Sprintf(pattern, id))
}

// ActiveUserShard resolves the private database of whichever user is logged
// in at call time. With nobody logged in the path is empty.
func ActiveUserShard(r *dao.Registry, dir, pattern string) dao.Resolver {
	return func(ctx context.Context) (string, error) {
		users, err := dao.Get(ctx, r, UserDaoType, NewUserDao, UserMapping)
		if err != nil {
			return "", err
		}
		u, err := users.CurrentActive(ctx)
		if err != nil {
			return "", err
		}
		if u == nil || u.ID == nil {
			return "", nil
		}
		return ShardPath(dir, pattern, *u.ID), nil
	}
}
