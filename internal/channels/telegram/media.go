package telegram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/mikann-OMO/bot/internal/bus"
	"github.com/mikann-OMO/bot/internal/channels"
)

// photoSegments returns one image segment for the highest resolution photo.
// Only the file ID is kept: the download URL embeds the bot token and must
// not leak into keyword tables or AI requests.
func photoSegments(msg *telego.Message) []bus.Segment {
	if len(msg.Photo) == 0 {
		return nil
	}
	photo := msg.Photo[len(msg.Photo)-1]
	return []bus.Segment{{Type: bus.SegmentImage, File: photo.FileID}}
}

// sendImage uploads a local image (downscaled when oversized) or lets
// Telegram fetch a remote one.
func (c *Channel) sendImage(ctx context.Context, chatID int64, p bus.Payload) error {
	var file telego.InputFile
	if p.Local {
		data, err := channels.LoadImage(p.Image, c.config.MaxImageDim)
		if err != nil {
			return err
		}
		file = tu.File(tu.NameReader(bytes.NewReader(data), channels.ImageName(p.Image)))
	} else {
		file = tu.FileFromURL(p.Image)
	}

	if _, err := c.bot.SendPhoto(ctx, tu.Photo(tu.ID(chatID), file)); err != nil {
		return fmt.Errorf("send telegram photo: %w", err)
	}
	return nil
}
