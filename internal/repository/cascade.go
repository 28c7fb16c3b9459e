package repository

import (
	"carkey/internal/models"

	"gorm.io/gorm"
)

// notificationColumns are the notification columns pointing at a kind's target and reply.
func notificationColumns(kind models.ContentKind) (target, reply string) {
	switch kind {
	case models.KindFeedback:
		return "feedback_id", "feedback_reply_id"
	case models.KindNotice:
		return "notice_id", "notice_reply_id"
	default:
		return "board_id", "reply_id"
	}
}

// purgeTargets deletes target rows of kind together with their images,
// replies, notifications and, for boards, recommends and best-board entries.
// It returns the storage keys of the removed images.
func purgeTargets(tx *gorm.DB, kind models.ContentKind, ids []uint) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var keys []string
	if err := tx.Table(kind.ImageTable()).Where("target_id IN ? AND object_key <> ''", ids).Pluck("object_key", &keys).Error; err != nil {
		return nil, err
	}
	if err := tx.Table(kind.ImageTable()).Where("target_id IN ?", ids).Delete(&models.Image{}).Error; err != nil {
		return nil, err
	}
	if err := tx.Table(kind.ReplyTable()).Where("target_id IN ?", ids).Delete(&models.Reply{}).Error; err != nil {
		return nil, err
	}
	targetCol, _ := notificationColumns(kind)
	if err := tx.Where(targetCol+" IN ?", ids).Delete(&models.Notification{}).Error; err != nil {
		return nil, err
	}
	if kind == models.KindBoard {
		if err := tx.Where("board_id IN ?", ids).Delete(&models.Recommend{}).Error; err != nil {
			return nil, err
		}
		if err := tx.Where("board_id IN ?", ids).Delete(&models.BestBoard{}).Error; err != nil {
			return nil, err
		}
	}
	if err := tx.Table(kind.TargetTable()).Where("id IN ?", ids).Delete(targetModel(kind)).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// deleteReplies deletes the given replies, all of their descendants and the
// notifications that point at any of them.
func deleteReplies(tx *gorm.DB, kind models.ContentKind, ids []uint) error {
	all := append([]uint(nil), ids...)
	frontier := ids
	for len(frontier) > 0 {
		var children []uint
		if err := tx.Table(kind.ReplyTable()).Where("parent_id IN ?", frontier).Pluck("id", &children).Error; err != nil {
			return err
		}
		all = append(all, children...)
		frontier = children
	}
	if len(all) == 0 {
		return nil
	}
	_, replyCol := notificationColumns(kind)
	if err := tx.Where(replyCol+" IN ?", all).Delete(&models.Notification{}).Error; err != nil {
		return err
	}
	return tx.Table(kind.ReplyTable()).Where("id IN ?", all).Delete(&models.Reply{}).Error
}

func targetModel(kind models.ContentKind) interface{} {
	if kind == models.KindBoard {
		return &models.Board{}
	}
	return &models.Article{}
}
