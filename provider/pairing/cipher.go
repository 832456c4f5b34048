package pairing

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/ipfs-force-community/sophon-connect/types"
)

const symKeyLen = 32

// envelope is the relay payload: AES-256-CBC ciphertext authenticated with HMAC-SHA256.
type envelope struct {
	Data string `json:"data"`
	Hmac string `json:"hmac"`
	IV   string `json:"iv"`
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func NewSymKey() (string, error) {
	key, err := randomBytes(symKeyLen)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key), nil
}

func NewTopic() (string, error) {
	topic, err := randomBytes(32)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(topic), nil
}

func decodeKey(symKey string) ([]byte, error) {
	key, err := hex.DecodeString(symKey)
	if err != nil || len(key) != symKeyLen {
		return nil, errors.Errorf("invalid sym key")
	}
	return key, nil
}

func hmacSha256(data, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(data)
	return h.Sum(nil)
}

// Seal encrypts plaintext under symKey and returns the serialised envelope.
func Seal(symKey string, plaintext []byte) (string, error) {
	key, err := decodeKey(symKey)
	if err != nil {
		return "", err
	}
	iv, err := randomBytes(aes.BlockSize)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", errors.Wrap(err, "create new cipher block")
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	data := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(data, padded)

	unsigned := append(append([]byte{}, data...), iv...)
	out, err := json.Marshal(&envelope{
		Data: hex.EncodeToString(data),
		IV:   hex.EncodeToString(iv),
		Hmac: hex.EncodeToString(hmacSha256(unsigned, key)),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Open authenticates and decrypts an envelope produced by Seal.
func Open(symKey string, payload string) ([]byte, error) {
	key, err := decodeKey(symKey)
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, errors.Wrap(types.ErrMalformedResponse, "decode envelope")
	}
	iv, err := hex.DecodeString(env.IV)
	if err != nil || len(iv) != aes.BlockSize {
		return nil, errors.Wrap(types.ErrMalformedResponse, "decode iv")
	}
	data, err := hex.DecodeString(env.Data)
	if err != nil || len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, errors.Wrap(types.ErrMalformedResponse, "decode cipher text")
	}
	mac, err := hex.DecodeString(env.Hmac)
	if err != nil {
		return nil, errors.Wrap(types.ErrMalformedResponse, "decode hmac")
	}
	unsigned := append(append([]byte{}, data...), iv...)
	if !hmac.Equal(mac, hmacSha256(unsigned, key)) {
		return nil, errors.Wrap(types.ErrMalformedResponse, "inconsistent envelope hmac")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "create new cipher block")
	}
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)
	return pkcs7Unpad(plain, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(types.ErrMalformedResponse, "empty plaintext")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize || padding > len(data) {
		return nil, errors.Wrap(types.ErrMalformedResponse, "bad padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, errors.Wrap(types.ErrMalformedResponse, "bad padding")
		}
	}
	return data[:len(data)-padding], nil
}
