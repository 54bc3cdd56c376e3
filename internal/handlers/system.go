package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/plugins"
	"github.com/mikann-OMO/bot/internal/router"
)

// ExitReply is sent before the gateway shuts down on #退出.
const ExitReply = "已退出框架进程！"

const (
	settingsMenu    = "〓 Bot 设置 〓\n#设置 详情"
	unknownSubcmd   = "未知命令！"
	statusHeader    = "〓 Bot 状态 〓"
	statusFailedFmt = "状态获取失败: %v"
)

const gib = 1 << 30

// HostStats is a point-in-time view of the machine the bot runs on.
type HostStats struct {
	Platform    string
	MemUsed     uint64
	MemTotal    uint64
	MemPercent  float64
	DiskUsed    uint64
	DiskTotal   uint64
	DiskPercent float64
}

// StatsFunc collects host statistics.
type StatsFunc func(ctx context.Context) (HostStats, error)

// SystemOptions configures the System handler.
type SystemOptions struct {
	Name    string
	Version string
	Owners  Owners
	Plugins *plugins.State
	// Stop is called after the #退出 reply is sent.
	Stop func()
}

// System answers owner-only status commands: #状态, #关于, #设置 and #退出.
type System struct {
	opts    SystemOptions
	started time.Time
	now     func() time.Time
	stats   StatsFunc
}

// NewSystem creates the system command handler. Uptime counts from now.
func NewSystem(opts SystemOptions) *System {
	return &System{
		opts:    opts,
		started: time.Now(),
		now:     time.Now,
		stats:   hostStats,
	}
}

// SetClock replaces the time source and restarts the uptime counter.
func (h *System) SetClock(now func() time.Time) {
	h.now = now
	h.started = now()
}

// SetStats replaces the host statistics source.
func (h *System) SetStats(fn StatsFunc) { h.stats = fn }

func (h *System) Handle(ctx context.Context, bot router.Bot, msg bus.InboundMessage) (bool, error) {
	if !h.opts.Owners.Contains(msg.SenderID) {
		return false, nil
	}

	var out string
	cmd, args := splitCommand(msg.PlainText())
	switch cmd {
	case "#状态":
		out = h.status(ctx)
	case "#关于":
		out = h.about()
	case "#设置":
		out = h.settings(args)
	case "#退出":
		slog.Info("exit command received", "sender", msg.SenderID)
		_ = replyText(ctx, bot, msg, ExitReply)
		if h.opts.Stop != nil {
			h.opts.Stop()
		}
		return true, nil
	default:
		return false, nil
	}
	_ = replyText(ctx, bot, msg, out)
	return true, nil
}

func (h *System) status(ctx context.Context) string {
	enabled := 0
	if h.opts.Plugins != nil {
		for _, p := range h.opts.Plugins.List() {
			if p.Enabled {
				enabled++
			}
		}
	}

	var b strings.Builder
	b.WriteString(statusHeader)
	fmt.Fprintf(&b, "\n%s %s", h.opts.Name, h.opts.Version)
	fmt.Fprintf(&b, "\n插件%d个已启用", enabled)
	b.WriteString("\n" + formatUptime(h.now().Sub(h.started)))

	st, err := h.stats(ctx)
	if err != nil {
		slog.Warn("collect host stats failed", "error", err)
		fmt.Fprintf(&b, "\n"+statusFailedFmt, err)
		return b.String()
	}
	fmt.Fprintf(&b, "\n%s - %s - %s", st.Platform, runtime.GOARCH, runtime.Version())
	fmt.Fprintf(&b, "\n%.2f GB/%.2f GB - %.1f%%", float64(st.MemUsed)/gib, float64(st.MemTotal)/gib, st.MemPercent)
	fmt.Fprintf(&b, "\n%.2f GB/%.2f GB - %.1f%%", float64(st.DiskUsed)/gib, float64(st.DiskTotal)/gib, st.DiskPercent)
	return b.String()
}

func (h *System) about() string {
	return fmt.Sprintf("〓 %s 〓\n版本: %s\n"+
		"━━━━━━━━━━━━━━━━━━━━\n"+
		"├─ 关键词回复：确切/包含匹配，支持正则与图片\n"+
		"├─ AI聊天：@我或以 oi 开头\n"+
		"├─ 插件管理：#插件管理\n"+
		"└─ 协议：OneBot v11 / Telegram / Discord",
		h.opts.Name, h.opts.Version)
}

func (h *System) settings(args string) string {
	sub, _ := splitCommand(args)
	switch sub {
	case "":
		return settingsMenu
	case "详情":
		ids := h.opts.Owners.IDs()
		slices.Sort(ids)
		return "〓 Bot 设置 〓\n超级用户: " + strings.Join(ids, "，")
	}
	return unknownSubcmd
}

// formatUptime renders d as "1d 2h 3m 4s".
func formatUptime(d time.Duration) string {
	s := int64(d / time.Second)
	return fmt.Sprintf("%dd %dh %dm %ds", s/86400, s%86400/3600, s%3600/60, s%60)
}

func hostStats(ctx context.Context) (HostStats, error) {
	var st HostStats

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return st, fmt.Errorf("host info: %w", err)
	}
	st.Platform = strings.TrimSpace(info.Platform + " " + info.PlatformVersion)
	if st.Platform == "" {
		st.Platform = info.OS
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return st, fmt.Errorf("memory: %w", err)
	}
	st.MemUsed, st.MemTotal, st.MemPercent = vm.Used, vm.Total, vm.UsedPercent

	du, err := disk.UsageWithContext(ctx, rootPath())
	if err != nil {
		return st, fmt.Errorf("disk: %w", err)
	}
	st.DiskUsed, st.DiskTotal, st.DiskPercent = du.Used, du.Total, du.UsedPercent
	return st, nil
}

// rootPath is the filesystem root of the working directory's volume.
func rootPath() string {
	wd, err := os.Getwd()
	if err != nil {
		return string(filepath.Separator)
	}
	return filepath.VolumeName(wd) + string(filepath.Separator)
}
