// Copyright (C) 2025 Driftchat Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/driftchat/driftchat/services/gateway/datatypes"
)

var (
	_ Factory    = (*mongoFactory)(nil)
	_ Repository = (*mongoRepository)(nil)
)

const (
	mongoDefaultDatabase = "driftchat"
	mongoItemsCollection = "items"
)

// mongoItem is the BSON shape of an item; the item id doubles as _id.
type mongoItem struct {
	ID    string `bson:"_id"`
	Title string `bson:"title"`
	Done  bool   `bson:"done"`
}

func (d mongoItem) toItem() datatypes.Item {
	return datatypes.Item{ID: d.ID, Title: d.Title, Done: d.Done}
}

type mongoFactory struct {
	uri      string
	database string
}

func newMongoFactory(uri, database string) *mongoFactory {
	if database == "" {
		database = mongoDefaultDatabase
	}
	return &mongoFactory{uri: uri, database: database}
}

func (f *mongoFactory) Create(ctx context.Context) (Repository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(f.uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &mongoRepository{
		client: client,
		coll:   client.Database(f.database).Collection(mongoItemsCollection),
	}, nil
}

func (f *mongoFactory) Connection() Connection {
	return Connection{Kind: KindMongo, StoreName: f.database}
}

type mongoRepository struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func (r *mongoRepository) Get(ctx context.Context, id string) (*datatypes.Item, error) {
	var doc mongoItem
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo get item: %w", err)
	}
	item := doc.toItem()
	return &item, nil
}

func (r *mongoRepository) List(ctx context.Context) ([]datatypes.Item, error) {
	cur, err := r.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("mongo list items: %w", err)
	}
	defer cur.Close(ctx)

	items := []datatypes.Item{}
	for cur.Next(ctx) {
		var doc mongoItem
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongo decode item: %w", err)
		}
		items = append(items, doc.toItem())
	}
	return items, cur.Err()
}

func (r *mongoRepository) Create(ctx context.Context, item datatypes.Item) (datatypes.Item, error) {
	item.ID = uuid.NewString()
	doc := mongoItem{ID: item.ID, Title: item.Title, Done: item.Done}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return datatypes.Item{}, fmt.Errorf("mongo create item: %w", err)
	}
	return item, nil
}

func (r *mongoRepository) Update(ctx context.Context, item datatypes.Item) (*datatypes.Item, error) {
	if item.ID == "" {
		return nil, nil
	}
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": item.ID},
		mongoItem{ID: item.ID, Title: item.Title, Done: item.Done})
	if err != nil {
		return nil, fmt.Errorf("mongo update item: %w", err)
	}
	if res.MatchedCount == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *mongoRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("mongo delete item: %w", err)
	}
	return nil
}

func (r *mongoRepository) Dispose(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *mongoRepository) IsReal() bool { return true }
