package extract

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

// 扩展名允许的 MIME 类型（含父类型）
var expectedMIME = map[string][]string{
	"pdf":  {"application/pdf"},
	"docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	"txt":  {"text/plain"},
	"csv":  {"text/plain", "text/csv"},
	"png":  {"image/png"},
	"jpg":  {"image/jpeg"},
	"jpeg": {"image/jpeg"},
}

// DetectMIME 根据文件头识别类型，并校验与扩展名一致
func DetectMIME(head []byte, ext string) (string, error) {
	m := mimetype.Detect(head)
	want, ok := expectedMIME[normalizeExt(ext)]
	if !ok {
		return m.String(), nil
	}
	for cur := m; cur != nil; cur = cur.Parent() {
		for _, w := range want {
			if cur.Is(w) {
				return m.String(), nil
			}
		}
	}
	return m.String(), fmt.Errorf("%w: .%s detected as %s", ErrTypeMismatch, normalizeExt(ext), m.String())
}
