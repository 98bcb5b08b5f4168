package types

import "time"

// User represents a gallery account.
// An account is created either by signup, in which case it carries a
// password hash, or by a first external-identity login, in which case it
// carries the provider-issued identity id. At least one of the two is set.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Username is the unique handle shown on posts and profiles.
	Username string `json:"username" db:"username"`

	// Email is the user's unique email address.
	Email string `json:"email" db:"email"`

	// FullName is the user's display name.
	FullName string `json:"full_name" db:"full_name"`

	// Bio is a free-form profile description.
	Bio string `json:"bio" db:"bio"`

	// PasswordHash stores the bcrypt hash of the user's password. It is empty
	// for accounts that only ever logged in through an external identity.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// GoogleID is the linked external-identity subject, if any.
	// This field is never exposed in API responses.
	GoogleID string `json:"-" db:"google_id"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasPassword reports whether the account can log in with a password.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

// HasExternalIdentity reports whether the account is linked to an external identity.
func (u User) HasExternalIdentity() bool {
	return u.GoogleID != ""
}

// UserProfile is the API representation of a user.
type UserProfile struct {
	User
	HasPassword  bool `json:"has_password"`
	LinkedGoogle bool `json:"linked_google"`
}

// Profile converts a user to its API representation.
func (u User) Profile() UserProfile {
	return UserProfile{
		User:         u,
		HasPassword:  u.HasPassword(),
		LinkedGoogle: u.HasExternalIdentity(),
	}
}

// ProfilePatch holds the optional fields of a profile update. A nil field is
// left unchanged.
type ProfilePatch struct {
	FullName *string `json:"full_name"`
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Bio      *string `json:"bio"`
	Password *string `json:"password"`
}
