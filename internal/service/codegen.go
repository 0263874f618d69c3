package service

import (
	"Shorty-Backend/pkg/random"
	"fmt"
	"strings"
)

const (
	DefaultAliasLength = 6
	maxAliasLength     = 50
)

// reservedAliases совпадают с маршрутами верхнего уровня или сворачиваются
// роутером при очистке пути, поэтому по ним нельзя сделать редирект
var reservedAliases = map[string]struct{}{
	"health":   {},
	"ready":    {},
	"register": {},
	"login":    {},
	".":        {},
	"..":       {},
}

// IsReservedAlias reports whether code collides with a fixed route.
func IsReservedAlias(code string) bool {
	_, ok := reservedAliases[code]
	return ok
}

// CodeGenerator выдает короткие коды. Уникальность кода проверяет вызывающий
// код через хранилище, здесь она не гарантируется.
type CodeGenerator struct {
	length int
}

func NewCodeGenerator(length int) *CodeGenerator {
	if length <= 0 {
		length = DefaultAliasLength
	}
	return &CodeGenerator{length: length}
}

// Generate возвращает customAlias как есть, если он задан, иначе случайный
// код фиксированной длины из алфавита [A-Za-z0-9]
func (g *CodeGenerator) Generate(customAlias *string) string {
	if customAlias != nil && *customAlias != "" {
		return *customAlias
	}
	for {
		code := random.NewRandomString(g.length)
		if !IsReservedAlias(code) {
			return code
		}
	}
}

// Length returns the length of generated codes.
func (g *CodeGenerator) Length() int {
	return g.length
}

func validateAlias(alias string) error {
	if len(alias) > maxAliasLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrInvalidAlias, maxAliasLength)
	}
	if strings.ContainsAny(alias, "/?#%\\ \t\n") {
		return fmt.Errorf("%w: must not contain '/', '?', '#', '%%', '\\' or whitespace", ErrInvalidAlias)
	}
	if IsReservedAlias(alias) {
		return fmt.Errorf("%w: %q is reserved", ErrInvalidAlias, alias)
	}
	return nil
}
