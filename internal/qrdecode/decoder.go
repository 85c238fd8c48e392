// Package qrdecode はBase64エンコードされたQRコード画像から文字列を読み取る。
package qrdecode

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrEmptyImage は画像データが空の場合のエラー。
var ErrEmptyImage = errors.New("qrdecode: empty image")

// Decoder はQRコード画像を文字列に変換する。
type Decoder interface {
	Decode(base64Image string) (string, error)
}

// ZXingDecoder はgozxingを使用したDecoderの実装。
type ZXingDecoder struct{}

// NewZXingDecoder はZXingDecoderを生成する。
func NewZXingDecoder() *ZXingDecoder {
	return &ZXingDecoder{}
}

// Decode はBase64画像（"data:image/png;base64," 形式の接頭辞を含んでもよい）のQRコードを読み取る。
func (d *ZXingDecoder) Decode(base64Image string) (string, error) {
	data := strings.TrimSpace(base64Image)
	if i := strings.Index(data, ";base64,"); strings.HasPrefix(data, "data:") && i >= 0 {
		data = data[i+len(";base64,"):]
	}
	if data == "" {
		return "", ErrEmptyImage
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("qrdecode: invalid base64: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("qrdecode: invalid image: %w", err)
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("qrdecode: %w", err)
	}

	result, err := qrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", fmt.Errorf("qrdecode: no QR code found: %w", err)
	}
	return result.GetText(), nil
}

var _ Decoder = (*ZXingDecoder)(nil)
