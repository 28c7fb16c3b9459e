package service

import (
	"context"

	"carkey/internal/models"
	"carkey/internal/repository"
)

// contentAssembler attaches images and reply trees to loaded targets.
type contentAssembler struct {
	images  repository.ImageRepository
	replies repository.ReplyRepository
}

func (a *contentAssembler) load(ctx context.Context, ids []uint) (map[uint][]models.Image, map[uint][]*models.Reply, error) {
	if len(ids) == 0 {
		return map[uint][]models.Image{}, map[uint][]*models.Reply{}, nil
	}
	images, err := a.images.ListByTargets(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	flat, err := a.replies.ListByTargets(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	trees := make(map[uint][]*models.Reply, len(ids))
	for _, id := range ids {
		trees[id] = models.BuildReplyTree(flat[id])
	}
	return images, trees, nil
}

func imagesOrEmpty(images []models.Image) []models.Image {
	if images == nil {
		return []models.Image{}
	}
	return images
}
