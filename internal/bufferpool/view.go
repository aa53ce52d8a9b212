package bufferpool

// FileView binds a BufferPool to one file so heap and index code can work
// with page numbers alone.
type FileView struct {
	bp   *BufferPool
	file string
}

func (v *FileView) File() string { return v.file }

func (v *FileView) FetchPage(pageNum uint32) (*Frame, error) {
	return v.bp.FetchPage(v.file, pageNum)
}

func (v *FileView) NewPage() (*Frame, error) {
	return v.bp.NewPage(v.file)
}

func (v *FileView) UnpinPage(pageNum uint32, dirty bool) error {
	return v.bp.UnpinPage(v.file, pageNum, dirty)
}

// FlushAll flushes dirty pages of THIS file only.
func (v *FileView) FlushAll() error {
	return v.bp.FlushAllPages(v.file)
}

// View returns a file-scoped handle backed by the shared pool.
func (bp *BufferPool) View(file string) *FileView {
	return &FileView{bp: bp, file: file}
}
