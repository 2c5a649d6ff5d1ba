package data

import (
	"context"
	"fmt"
	"log"

	"github.com/SzJasonHuang/PaperCuts/internal/conf"
	"github.com/SzJasonHuang/PaperCuts/internal/model"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Data 结构体持有所有数据库句柄
type Data struct {
	Minio  *minio.Client
	Redis  *redis.Client
	DB     *gorm.DB
	Bucket string
}

func NewData(cfg *conf.Config) (*Data, func(), error) {
	// -------------------------------------------------------
	// 1. 连接 Postgres
	// -------------------------------------------------------
	dsn := cfg.Data.DatabaseSource
	pgDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %v", err)
	}

	// 自动迁移，GORM 会自动建表或修改字段
	if err := pgDB.AutoMigrate(
		&model.PdfSession{},
	); err != nil {
		return nil, nil, fmt.Errorf("schema migration failed: %v", err)
	}
	log.Println("✅ 数据库表结构迁移完成")

	// -------------------------------------------------------
	// 2. 初始化 Redis (会话锁)
	// -------------------------------------------------------
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Data.RedisAddr,
		Password: cfg.Data.RedisPassword,
	})
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, nil, fmt.Errorf("redis 连接失败: %v", err)
	}
	log.Println("✅ Redis 连接成功")

	// -------------------------------------------------------
	// 3. 初始化 MinIO
	// -------------------------------------------------------
	minioClient, err := minio.New(cfg.Data.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Data.MinioAccessKey, cfg.Data.MinioSecretKey, ""),
		Secure: false,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("minio 初始化失败: %v", err)
	}

	// 自动创建 MinIO Bucket
	bucketName := cfg.Data.MinioBucket
	if bucketName == "" {
		bucketName = "papercuts-docs" // 兜底
	}

	exists, err := minioClient.BucketExists(context.Background(), bucketName)
	if err != nil {
		return nil, nil, fmt.Errorf("检查 MinIO Bucket 失败: %v", err)
	}
	if !exists {
		if err := minioClient.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, nil, fmt.Errorf("创建 MinIO Bucket 失败: %v", err)
		}
		log.Printf("🎉 MinIO Bucket '%s' 创建成功", bucketName)
	} else {
		log.Printf("✅ MinIO 连接成功 (Bucket '%s' 已存在)", bucketName)
	}

	d := &Data{
		Minio:  minioClient,
		Redis:  rdb,
		DB:     pgDB,
		Bucket: bucketName,
	}

	// 构造清理函数
	cleanup := func() {
		log.Println("正在关闭数据层资源...")
		if sqlDB, err := d.DB.DB(); err == nil {
			sqlDB.Close()
		}
		d.Redis.Close()
	}

	return d, cleanup, nil
}
