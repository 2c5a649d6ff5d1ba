package pdf

import (
	"image"

	"github.com/gen2brain/go-fitz"
)

// Renderer PDF 渲染器契约。核心只消费这个接口，不关心底层实现。
type Renderer interface {
	Open(data []byte) (Document, error)
}

// Document 已打开的 PDF 文档。页码从 0 开始。
type Document interface {
	PageCount() int
	// RenderPage 按指定 DPI 把某一页栅格化成位图
	RenderPage(page int, dpi float64) (image.Image, error)
	Close() error
}

// FitzRenderer 基于 MuPDF (go-fitz) 的实现。
type FitzRenderer struct{}

func NewFitzRenderer() *FitzRenderer {
	return &FitzRenderer{}
}

func (r *FitzRenderer) Open(data []byte) (Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, err
	}
	return &fitzDocument{doc: doc}, nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) PageCount() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) RenderPage(page int, dpi float64) (image.Image, error) {
	return d.doc.ImageDPI(page, dpi)
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
