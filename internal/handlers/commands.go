package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/keyword"
	"github.com/mikann-OMO/bot/internal/plugins"
	"github.com/mikann-OMO/bot/internal/router"
)

const (
	kwMenu = "#kw on/off\n#kw rm <关键词>\n#kw ls"

	addFormatHelp = "命令格式错误，请使用：#关键词添加包含（关键词），（回复内容） 或 #关键词添加确切（关键词），（回复内容）"

	pluginHelp = "〓 插件管理 〓\n" +
		"#插件管理 列表 - 查看所有插件\n" +
		"#插件管理 启用 <插件名> - 启用指定插件\n" +
		"#插件管理 禁用 <插件名> - 禁用指定插件"

	commandFailed = "操作失败，请稍后重试"

	listLimit    = 30
	listReplyMax = 24
)

// addCommand captures table, keyword and reply. The separator is a
// fullwidth comma; the keyword cannot contain one.
var addCommand = regexp.MustCompile(`^#关键词添加(包含|确切)\s*([^，]+?)\s*，\s*(.*)$`)

// Commands handles owner-only administration. Messages from anyone else,
// and text that is not a command, fall through.
type Commands struct {
	svc     *keyword.Service
	plugins *plugins.State
	owners  Owners
}

// NewCommands creates the admin command handler.
func NewCommands(svc *keyword.Service, ps *plugins.State, owners Owners) *Commands {
	return &Commands{svc: svc, plugins: ps, owners: owners}
}

func (h *Commands) Handle(ctx context.Context, bot router.Bot, msg bus.InboundMessage) (bool, error) {
	if !h.owners.Contains(msg.SenderID) {
		return false, nil
	}
	text := msg.PlainText()

	var out string
	var err error
	switch cmd, args := splitCommand(text); cmd {
	case "#kw":
		out, err = h.kw(ctx, msg, args)
	case "#插件管理":
		out, err = h.pluginCmd(ctx, args)
	default:
		if !strings.HasPrefix(text, "#关键词添加") {
			return false, nil
		}
		out, err = h.add(ctx, msg, text)
	}
	if err != nil {
		slog.Error("admin command failed", "command", text, "sender", msg.SenderID, "error", err)
		out = commandFailed
	}
	if out == "" {
		return false, nil
	}
	_ = replyText(ctx, bot, msg, out)
	return true, nil
}

// splitCommand splits "#kw rm foo" into "#kw" and "rm foo".
func splitCommand(text string) (string, string) {
	cmd, args, _ := strings.Cut(text, " ")
	return cmd, strings.TrimSpace(args)
}

func (h *Commands) kw(ctx context.Context, msg bus.InboundMessage, args string) (string, error) {
	sub, rest := splitCommand(args)
	switch sub {
	case "":
		return kwMenu, nil
	case "on", "off":
		if !msg.Scope.IsGroup() {
			return "", nil
		}
		return h.toggleGroup(ctx, msg.Scope.GroupID, sub == "on")
	case "rm":
		return h.remove(ctx, rest)
	case "ls":
		return h.list(), nil
	}
	return kwMenu, nil
}

func (h *Commands) toggleGroup(ctx context.Context, groupID string, enable bool) (string, error) {
	changed, err := h.svc.SetGroupEnabled(ctx, groupID, enable)
	if err != nil {
		return "", err
	}
	switch {
	case enable && changed:
		return "已开启关键词回复", nil
	case enable:
		return "关键词回复已处于开启状态", nil
	case changed:
		return "已关闭关键词回复", nil
	default:
		return "关键词回复已处于关闭状态", nil
	}
}

func (h *Commands) remove(ctx context.Context, pattern string) (string, error) {
	if pattern == "" {
		return "请指定要删除的关键词", nil
	}
	pattern = unquote(pattern)
	if _, err := h.svc.RemoveKeyword(ctx, pattern); err != nil {
		if errors.Is(err, keyword.ErrKeywordNotFound) {
			return fmt.Sprintf("关键词 '%s' 不存在", pattern), nil
		}
		return "", err
	}
	return "已删除关键词回复", nil
}

// unquote strips one pair of matching ", ' or ` quotes.
func unquote(s string) string {
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if first == last && (first == '"' || first == '\'' || first == '`') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func (h *Commands) list() string {
	st := h.svc.State()
	var b strings.Builder
	fmt.Fprintf(&b, "确切关键词: %d\n包含关键词: %d", len(st.Exact), len(st.Contains))
	if s := keyword.FormatEntries(st.Exact, listReplyMax, listLimit); s != "" {
		b.WriteString("\n\n〓 确切 〓\n" + s)
	}
	if s := keyword.FormatEntries(st.Contains, listReplyMax, listLimit); s != "" {
		b.WriteString("\n\n〓 包含 〓\n" + s)
	}
	return b.String()
}

func (h *Commands) add(ctx context.Context, msg bus.InboundMessage, text string) (string, error) {
	m := addCommand.FindStringSubmatch(text)
	if m == nil {
		return addFormatHelp, nil
	}
	table, _ := keyword.ParseTable(m[1])
	e := keyword.Entry{Pattern: m[2], Reply: strings.TrimSpace(m[3])}
	if urls := msg.ImageURLs(); len(urls) > 0 {
		e.Reply = urls[0]
	}
	if e.Reply == "" {
		return addFormatHelp, nil
	}

	if err := h.svc.AddKeyword(ctx, table, e); err != nil {
		if errors.Is(err, keyword.ErrDuplicateKeyword) {
			return fmt.Sprintf("关键词 '%s' 已存在", e.Pattern), nil
		}
		return "", err
	}
	return fmt.Sprintf("已添加%s关键词回复", m[1]), nil
}

func (h *Commands) pluginCmd(ctx context.Context, args string) (string, error) {
	sub, name := splitCommand(args)
	switch sub {
	case "":
		return pluginHelp, nil
	case "列表":
		return h.pluginList(), nil
	case "启用", "禁用":
		enable := sub == "启用"
		if name == "" {
			return fmt.Sprintf("请指定要%s的插件名称", sub), nil
		}
		if err := h.plugins.SetEnabled(ctx, name, enable); err != nil {
			if errors.Is(err, plugins.ErrUnknownPlugin) {
				return fmt.Sprintf("%s插件失败: %s", sub, name), nil
			}
			return "", err
		}
		return fmt.Sprintf("已%s插件: %s", sub, name), nil
	}
	return "未知命令，请使用 #插件管理 查看帮助", nil
}

func (h *Commands) pluginList() string {
	var on, off []string
	for _, p := range h.plugins.List() {
		desc := plugins.Descriptions[p.Name]
		if desc == "" {
			desc = "无描述"
		}
		line := fmt.Sprintf("├─ %s - %s", p.Name, desc)
		if p.Enabled {
			on = append(on, line)
		} else {
			off = append(off, line)
		}
	}
	var b strings.Builder
	b.WriteString("〓 插件信息 〓")
	if len(on) > 0 {
		b.WriteString("\n\n启用的插件:\n" + strings.Join(on, "\n"))
	}
	if len(off) > 0 {
		b.WriteString("\n\n禁用的插件:\n" + strings.Join(off, "\n"))
	}
	return b.String()
}
