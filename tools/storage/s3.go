package storage

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"plantagent/plant"
)

// S3RecipeSource serves recipes from a JSON artifact in S3. Used by the
// Lambda deployment where no plant database is reachable.
type S3RecipeSource struct {
	bucket string
	key    string
	s3     *s3.Client
}

func NewS3RecipeSource(s3Client *s3.Client, bucket, key string) *S3RecipeSource {
	return &S3RecipeSource{
		bucket: bucket,
		key:    key,
		s3:     s3Client,
	}
}

func (s *S3RecipeSource) GetRecipe(ctx context.Context, product string) (plant.Recipe, error) {
	recipes, err := loadRecipes(ctx, s.load)
	if err != nil {
		return plant.Recipe{}, err
	}
	return findRecipe(recipes, product)
}

func (s *S3RecipeSource) load(ctx context.Context) ([]byte, error) {
	resp, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
