package domain

import (
	"database/sql/driver"
	"fmt"
	"strconv"
)

// Owner is the optional owner of a link: either NoOwner() or OwnedBy(id).
// It maps to a nullable owner_id column.
type Owner struct {
	userID int64
	valid  bool
}

// NoOwner returns the owner of an anonymous link.
func NoOwner() Owner {
	return Owner{}
}

// OwnedBy returns an owner referring to the given user.
func OwnedBy(userID int64) Owner {
	return Owner{userID: userID, valid: true}
}

// UserID returns the owning user id and whether the link has an owner at all.
func (o Owner) UserID() (int64, bool) {
	return o.userID, o.valid
}

// IsOwnedBy reports whether the link belongs to userID. Anonymous links belong to nobody.
func (o Owner) IsOwnedBy(userID int64) bool {
	return o.valid && o.userID == userID
}

func (o Owner) String() string {
	if !o.valid {
		return "anonymous"
	}
	return "user:" + strconv.FormatInt(o.userID, 10)
}

// Value implements driver.Valuer.
func (o Owner) Value() (driver.Value, error) {
	if !o.valid {
		return nil, nil
	}
	return o.userID, nil
}

// Scan implements sql.Scanner.
func (o *Owner) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*o = NoOwner()
	case int64:
		*o = OwnedBy(v)
	case int32:
		*o = OwnedBy(int64(v))
	case []byte:
		id, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("failed to scan owner %q: %w", v, err)
		}
		*o = OwnedBy(id)
	case string:
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("failed to scan owner %q: %w", v, err)
		}
		*o = OwnedBy(id)
	default:
		return fmt.Errorf("unsupported owner type %T", src)
	}
	return nil
}

// GormDataType tells GORM which column type to migrate.
func (Owner) GormDataType() string {
	return "bigint"
}
