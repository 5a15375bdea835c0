package identity

import (
	"errors"
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUsernameTaken occurs when registering a username that already exists.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords, so callers cannot enumerate registered usernames.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// User links a login to its account.
type User struct {
	Username      string `json:"username"`
	PasswordHash  []byte `json:"password_hash"`
	AccountNumber string `json:"account_number"`
	FullName      string `json:"full_name"`
}

// Directory is the user registry, keyed by username.
type Directory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewDirectory rebuilds the registry from persisted users.
func NewDirectory(users []User) *Directory {
	d := &Directory{users: make(map[string]User, len(users))}
	for _, u := range users {
		d.users[u.Username] = u
	}
	return d
}

// Register stores a new user with a bcrypt password hash.
func (d *Directory) Register(username, password, accountNumber, fullName string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.users[username]; exists {
		return User{}, ErrUsernameTaken
	}

	user := User{
		Username:      username,
		PasswordHash:  hash,
		AccountNumber: accountNumber,
		FullName:      fullName,
	}
	d.users[username] = user
	return user, nil
}

// Taken reports whether the username is already registered.
func (d *Directory) Taken(username string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[username]
	return ok
}

// Authenticate verifies the username/password pair.
func (d *Directory) Authenticate(username, password string) (User, error) {
	d.mu.RLock()
	user, ok := d.users[username]
	d.mu.RUnlock()
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// Snapshot returns a copy of every user, ordered by username, for persistence.
func (d *Directory) Snapshot() []User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	users := make([]User, 0, len(d.users))
	for _, u := range d.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users
}
