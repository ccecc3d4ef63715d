package verification

import (
	"crypto/hmac"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	"trustkit/internal/domain"
)

// symbols is the fixed table the short authentication string is drawn from.
// Both sides must use the same table in the same order.
var symbols = [64]domain.Symbol{
	{Emoji: "🐶", Name: "dog"}, {Emoji: "🐱", Name: "cat"},
	{Emoji: "🦁", Name: "lion"}, {Emoji: "🐎", Name: "horse"},
	{Emoji: "🦄", Name: "unicorn"}, {Emoji: "🐷", Name: "pig"},
	{Emoji: "🐘", Name: "elephant"}, {Emoji: "🐰", Name: "rabbit"},
	{Emoji: "🐼", Name: "panda"}, {Emoji: "🐓", Name: "rooster"},
	{Emoji: "🐧", Name: "penguin"}, {Emoji: "🐢", Name: "turtle"},
	{Emoji: "🐟", Name: "fish"}, {Emoji: "🐙", Name: "octopus"},
	{Emoji: "🦋", Name: "butterfly"}, {Emoji: "🌷", Name: "flower"},
	{Emoji: "🌳", Name: "tree"}, {Emoji: "🌵", Name: "cactus"},
	{Emoji: "🍄", Name: "mushroom"}, {Emoji: "🌏", Name: "globe"},
	{Emoji: "🌙", Name: "moon"}, {Emoji: "☁️", Name: "cloud"},
	{Emoji: "🔥", Name: "fire"}, {Emoji: "🍌", Name: "banana"},
	{Emoji: "🍎", Name: "apple"}, {Emoji: "🍓", Name: "strawberry"},
	{Emoji: "🌽", Name: "corn"}, {Emoji: "🍕", Name: "pizza"},
	{Emoji: "🎂", Name: "cake"}, {Emoji: "❤️", Name: "heart"},
	{Emoji: "😀", Name: "smiley"}, {Emoji: "🤖", Name: "robot"},
	{Emoji: "🎩", Name: "hat"}, {Emoji: "👓", Name: "glasses"},
	{Emoji: "🔧", Name: "spanner"}, {Emoji: "🎅", Name: "santa"},
	{Emoji: "👍", Name: "thumbs up"}, {Emoji: "☂️", Name: "umbrella"},
	{Emoji: "⌛", Name: "hourglass"}, {Emoji: "⏰", Name: "clock"},
	{Emoji: "🎁", Name: "gift"}, {Emoji: "💡", Name: "light bulb"},
	{Emoji: "📕", Name: "book"}, {Emoji: "✏️", Name: "pencil"},
	{Emoji: "📎", Name: "paperclip"}, {Emoji: "✂️", Name: "scissors"},
	{Emoji: "🔒", Name: "lock"}, {Emoji: "🔑", Name: "key"},
	{Emoji: "🔨", Name: "hammer"}, {Emoji: "☎️", Name: "telephone"},
	{Emoji: "🏁", Name: "flag"}, {Emoji: "🚂", Name: "train"},
	{Emoji: "🚲", Name: "bicycle"}, {Emoji: "✈️", Name: "aeroplane"},
	{Emoji: "🚀", Name: "rocket"}, {Emoji: "🏆", Name: "trophy"},
	{Emoji: "⚽", Name: "ball"}, {Emoji: "🎸", Name: "guitar"},
	{Emoji: "🎺", Name: "trumpet"}, {Emoji: "🔔", Name: "bell"},
	{Emoji: "⚓", Name: "anchor"}, {Emoji: "🎧", Name: "headphones"},
	{Emoji: "📁", Name: "folder"}, {Emoji: "📌", Name: "pin"},
}

// deriveShortCode expands the exchanged key material into the seven display
// symbols. Deterministic: both sides derive the same sequence from the same
// material and transaction id, which is the whole point of the comparison.
func deriveShortCode(material domain.KeyMaterial, id domain.TransactionID) (domain.ShortCode, error) {
	var code domain.ShortCode
	r := hkdf.New(sha256.New, material, []byte(id), []byte("trustkit sas v1"))
	buf := make([]byte, domain.ShortCodeLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return code, err
	}
	for i, b := range buf {
		code[i] = symbols[int(b)%len(symbols)]
	}
	return code, nil
}

// deriveMac computes the handshake MAC for one role. Each side sends the MAC
// for its own role and checks the counterpart against the opposite role, so
// the two directions can never be confused.
func deriveMac(material domain.KeyMaterial, id domain.TransactionID, role domain.Role) ([]byte, error) {
	r := hkdf.New(sha256.New, material, []byte(id), []byte("trustkit mac v1 "+role.String()))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	m := hmac.New(sha256.New, key)
	m.Write([]byte(id))
	return m.Sum(nil), nil
}
