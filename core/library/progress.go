package library

import (
	"io"
	"time"

	"Tunevault/logger"
)

// ProgressFunc 上传进度回调：已传输字节数与总字节数
type ProgressFunc func(transferred, total int64)

// progressReader 包装上传数据流，按步长回调并记录日志
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	lastStep int64
	step     int64
	started  time.Time
	key      string
	onChange ProgressFunc
}

func newProgressReader(r io.Reader, total int64, key string, fn ProgressFunc) *progressReader {
	step := total / 10
	if step < 1<<20 {
		step = 1 << 20
	}
	return &progressReader{r: r, total: total, step: step, started: time.Now(), key: key, onChange: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += int64(n)
		if p.onChange != nil {
			p.onChange(p.read, p.total)
		}
		if p.read-p.lastStep >= p.step || p.read == p.total {
			p.lastStep = p.read
			p.log()
		}
	}
	return n, err
}

func (p *progressReader) log() {
	var percent float64
	if p.total > 0 {
		percent = float64(p.read) / float64(p.total) * 100
	}
	var speed float64
	if elapsed := time.Since(p.started).Seconds(); elapsed > 0 {
		speed = float64(p.read) / elapsed / (1024 * 1024)
	}
	logger.Debug("[Library] 上传进度",
		logger.String("key", p.key),
		logger.Float64("progress", percent),
		logger.Int64("transferred", p.read),
		logger.Int64("total", p.total),
		logger.Float64("speedMBps", speed))
}
