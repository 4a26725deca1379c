package service

import (
	"strings"
)

// delimPair 单个元数据块的起止分隔符
type delimPair struct {
	kind  BlockKind
	start string
	end   string
}

var blockDelims = []delimPair{
	{BlockSchema, SchemaStartDelim, SchemaEndDelim},
	{BlockSummary, SummaryStartDelim, SummaryEndDelim},
}

// StreamDemux 从分片到达的文本流中剥离隐藏元数据块，并给出可安全渲染的正文。
// 单请求单实例，非并发安全：分片按到达顺序在同一条控制流上喂入。
type StreamDemux struct {
	raw         string               // 已收到且未被剥离的全部字符
	blocks      map[BlockKind]string // 已提取的块，写入后不再改动
	lastDisplay string
	finished    bool // 流已结束，尾部不再可能出现分隔符
}

func NewStreamDemux() *StreamDemux {
	return &StreamDemux{
		blocks: make(map[BlockKind]string),
	}
}

// Feed 追加一个分片，返回当前可渲染正文。
// changed=false 表示正文与上次一致，调用方可跳过本轮渲染。
func (d *StreamDemux) Feed(fragment string) (display string, changed bool) {
	d.raw += fragment

	// 对每个尚未提取的块尝试一次提取。块一旦提取完成即不再扫描。
	for _, p := range blockDelims {
		if _, done := d.blocks[p.kind]; done {
			continue
		}

		si := strings.Index(d.raw, p.start)
		if si < 0 {
			continue
		}
		// 只有结束分隔符完整到达后才能提取
		rel := strings.Index(d.raw[si+len(p.start):], p.end)
		if rel < 0 {
			continue
		}

		innerStart := si + len(p.start)
		d.blocks[p.kind] = strings.TrimSpace(d.raw[innerStart : innerStart+rel])
		// 连同两端分隔符一起从缓冲区剔除，块外的正文全部保留
		d.raw = d.raw[:si] + d.raw[innerStart+rel+len(p.end):]
	}

	display = d.displayProse()
	changed = display != d.lastDisplay
	d.lastDisplay = display
	return display, changed
}

// displayProse 当前可安全展示的正文：
// 某个待提取块的起始分隔符已到而结束分隔符未到时，从起始位置截断，
// 避免分隔符语法在提取完成前闪现；尾部疑似分隔符前缀同样隐藏。
func (d *StreamDemux) displayProse() string {
	display := d.raw

	cut := len(display)
	for _, p := range blockDelims {
		if _, done := d.blocks[p.kind]; done {
			continue
		}
		if si := strings.Index(display, p.start); si >= 0 && si < cut {
			cut = si
		}
	}
	display = display[:cut]

	// 尾部疑似前缀只在流进行中隐藏；流结束后它就是正文，不能丢
	if d.finished {
		return display
	}
	return trimPartialDelim(display, d.blocks)
}

// trimPartialDelim 去掉末尾可能是待提取块起始分隔符前缀的部分
func trimPartialDelim(display string, done map[BlockKind]string) string {
	maxTrim := 0
	for _, p := range blockDelims {
		if _, ok := done[p.kind]; ok {
			continue
		}
		// 从最长的可能前缀往下找
		limit := len(p.start) - 1
		if limit > len(display) {
			limit = len(display)
		}
		for n := limit; n > maxTrim; n-- {
			if strings.HasSuffix(display, p.start[:n]) {
				maxTrim = n
				break
			}
		}
	}
	return display[:len(display)-maxTrim]
}

// Block 返回已提取的块内容；流结束后仍未收齐的块报告为不可用
func (d *StreamDemux) Block(kind BlockKind) (string, bool) {
	v, ok := d.blocks[kind]
	return v, ok
}

// FinalDisplay 流结束时的最终正文。起始分隔符已到但结束分隔符始终未到时，
// 截断后的正文即为最终结果，对应块保持缺失——静默降级，不作为错误上报。
// 末尾恰好形如分隔符前缀的普通正文此时原样保留。
func (d *StreamDemux) FinalDisplay() string {
	d.finished = true
	return d.displayProse()
}
