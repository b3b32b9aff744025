package utils

import (
	"crypto/rand"
	"fmt"
)

// CodeAlphabet — алфавит кода проверки встречи. Исключены похожие друг на
// друга символы: 0/O, 1/I/L.
const CodeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// CodeLength — длина кода проверки.
const CodeLength = 4

// GenerateMeetupCode возвращает случайный код проверки встречи. Уникальность
// среди живых встреч обеспечивает частичный уникальный индекс в базе;
// вызывающая сторона повторяет вставку при конфликте.
func GenerateMeetupCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("ошибка генерации кода встречи: %w", err)
	}

	code := make([]byte, CodeLength)
	for i, b := range buf {
		code[i] = CodeAlphabet[int(b)%len(CodeAlphabet)]
	}
	return string(code), nil
}
