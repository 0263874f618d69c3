package auth

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost используется, когда настроенная сложность вне диапазона bcrypt
const DefaultBcryptCost = 12

const (
	minPasswordLength = 6
	maxPasswordBytes  = 72 // bcrypt игнорирует все после 72 байт
)

var ErrInvalidPassword = errors.New("invalid password")

// PasswordHasher хеширует и сверяет пароли
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	VerifyPassword(hashedPassword, password string) error
	// VerifyDummy тратит на сверку столько же времени, сколько VerifyPassword,
	// когда сверять не с чем (пользователь не найден).
	VerifyDummy(password string)
}

// PasswordService хранит пароли как bcrypt хеш заданной сложности
type PasswordService struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

var _ PasswordHasher = (*PasswordService)(nil)

// NewPasswordService создает сервис с заданной сложностью bcrypt
func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PasswordService{cost: cost}
}

func (s *PasswordService) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrInvalidPassword
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (s *PasswordService) VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// VerifyDummy сравнивает пароль с хешем-заглушкой той же сложности.
// Результат всегда отрицательный и не возвращается.
func (s *PasswordService) VerifyDummy(password string) {
	s.dummyOnce.Do(func() {
		// ошибка возможна только при неверной сложности, она уже проверена
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("shorty-dummy-password"), s.cost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}

// IsValidPassword проверяет длину пароля
func IsValidPassword(password string) error {
	if len(password) < minPasswordLength {
		return errors.New("password must be at least 6 characters long")
	}
	if len(password) > maxPasswordBytes {
		return errors.New("password must be no more than 72 bytes long")
	}
	return nil
}
